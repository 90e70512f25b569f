package kafka

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/pkg/kversion"
)

// minimumClientAPIVersion is the oldest Kafka version whose admin APIs are sufficient for collecting offsets.
const minimumClientAPIVersion = ">= 0.10.2"

var knownVersions = []struct {
	version  string
	versions func() *kversion.Versions
}{
	{"0.10.2", kversion.V0_10_2},
	{"0.11.0", kversion.V0_11_0},
	{"1.0.0", kversion.V1_0_0},
	{"1.1.0", kversion.V1_1_0},
	{"2.0.0", kversion.V2_0_0},
	{"2.1.0", kversion.V2_1_0},
	{"2.2.0", kversion.V2_2_0},
	{"2.3.0", kversion.V2_3_0},
	{"2.4.0", kversion.V2_4_0},
	{"2.5.0", kversion.V2_5_0},
	{"2.6.0", kversion.V2_6_0},
	{"2.7.0", kversion.V2_7_0},
	{"2.8.0", kversion.V2_8_0},
	{"3.0.0", kversion.V3_0_0},
	{"3.1.0", kversion.V3_1_0},
	{"3.2.0", kversion.V3_2_0},
	{"3.3.0", kversion.V3_3_0},
	{"3.4.0", kversion.V3_4_0},
	{"3.5.0", kversion.V3_5_0},
}

// maxVersionsFor returns the request versions of the newest known Kafka release that is not newer than the given
// version. Versions older than 0.10.2 are rejected.
func maxVersionsFor(apiVersion string) (*kversion.Versions, error) {
	v, err := semver.NewVersion(apiVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to parse client api version '%v': %w", apiVersion, err)
	}

	constraint, err := semver.NewConstraint(minimumClientAPIVersion)
	if err != nil {
		return nil, err
	}
	if !constraint.Check(v) {
		return nil, fmt.Errorf("client api version '%v' is not supported, it must be %v", apiVersion, minimumClientAPIVersion)
	}

	var matched func() *kversion.Versions
	for _, known := range knownVersions {
		if semver.MustParse(known.version).GreaterThan(v) {
			break
		}
		matched = known.versions
	}

	return matched(), nil
}

// GetAPIVersions requests the api versions supported by the cluster.
func GetAPIVersions(ctx context.Context, client *kgo.Client) (*kmsg.ApiVersionsResponse, error) {
	versionsReq := kmsg.NewApiVersionsRequest()
	versionsReq.ClientSoftwareName = "kconsumer"
	versionsReq.ClientSoftwareVersion = "v1"
	res, err := versionsReq.RequestWith(ctx, client)
	if err != nil {
		return nil, fmt.Errorf("failed to request api versions: %w", err)
	}

	err = kerr.ErrorForCode(res.ErrorCode)
	if err != nil {
		return nil, fmt.Errorf("failed to request api versions. Inner kafka error: %w", err)
	}

	return res, nil
}

// EnsureCompatibility checks that the cluster supports all requests that are issued while collecting offsets.
func EnsureCompatibility(ctx context.Context, client *kgo.Client) error {
	versionsRes, err := GetAPIVersions(ctx, client)
	if err != nil {
		return fmt.Errorf("kafka api versions couldn't be fetched: %w", err)
	}
	versions := kversion.FromApiVersionsResponse(versionsRes)

	required := []kmsg.Request{
		kmsg.NewPtrMetadataRequest(),
		kmsg.NewPtrListOffsetsRequest(),
		kmsg.NewPtrOffsetFetchRequest(),
		kmsg.NewPtrListGroupsRequest(),
	}
	for _, req := range required {
		if !versions.HasKey(req.Key()) {
			return fmt.Errorf("kafka cluster does not support the %v request, cluster version is probably too old (%v)",
				kmsg.NameForKey(req.Key()), versions.VersionGuess())
		}
	}

	return nil
}
