package offsets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateConsumerGroups(t *testing.T) {
	tt := []struct {
		TestName string
		Groups   []ConsumerGroupConfig
		IsValid  bool
	}{
		{"no groups", nil, true},
		{"plain group", []ConsumerGroupConfig{{GroupID: "my_consumer"}}, true},
		{"narrowed group", []ConsumerGroupConfig{{GroupID: "g", Topics: []TopicSelection{{Name: "marvel", Partitions: []int32{0, 1}}}}}, true},
		{"empty group id", []ConsumerGroupConfig{{GroupID: ""}}, false},
		{"duplicate group", []ConsumerGroupConfig{{GroupID: "g"}, {GroupID: "g"}}, false},
		{"empty topic name", []ConsumerGroupConfig{{GroupID: "g", Topics: []TopicSelection{{Name: ""}}}}, false},
		{"duplicate topic", []ConsumerGroupConfig{{GroupID: "g", Topics: []TopicSelection{{Name: "dc"}, {Name: "dc"}}}}, false},
		{"negative partition", []ConsumerGroupConfig{{GroupID: "g", Topics: []TopicSelection{{Name: "dc", Partitions: []int32{-1}}}}}, false},
	}

	for _, test := range tt {
		t.Run(test.TestName, func(t *testing.T) {
			err := ValidateConsumerGroups(test.Groups)
			if test.IsValid {
				assert.NoError(t, err)
				return
			}
			var cfgErr *ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	cfg.SetDefaults()
	assert.NoError(t, cfg.Validate())

	cfg.Source = SourceZookeeper
	assert.NoError(t, cfg.Validate())

	cfg.Source = "etcd"
	assert.Error(t, cfg.Validate())
}

func TestConfig_GroupIDs(t *testing.T) {
	cfg := Config{ConsumerGroups: []ConsumerGroupConfig{{GroupID: "zeta"}, {GroupID: "alpha"}}}
	assert.Equal(t, []string{"alpha", "zeta"}, cfg.GroupIDs())
}

func TestGroupFilter_Allows(t *testing.T) {
	filters := newGroupFilters([]ConsumerGroupConfig{
		{GroupID: "all"},
		{GroupID: "narrow", Topics: []TopicSelection{{Name: "marvel"}, {Name: "dc", Partitions: []int32{1}}}},
	})

	assert.True(t, filters["all"].allows("anything", 4))
	assert.True(t, filters["narrow"].allows("marvel", 7))
	assert.True(t, filters["narrow"].allows("dc", 1))
	assert.False(t, filters["narrow"].allows("dc", 0))
	assert.False(t, filters["narrow"].allows("other", 0))
}
