package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwitchCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/h1_boost/command"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "h1_boost", "device extract")
}

func TestSwitchCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/h1_boost/state"
	r := switchCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestInputNumberCommandParse(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/number/h1_set_target_temperature/set"
	r := inputNumberCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "h1_set_target_temperature", "number_id extract")
}

func TestInputNumberCommandParseFail(t *testing.T) {

	assert := assert.New(t)

	baseTopic := "loremTopic"
	topic := "loremTopic/switch/h1_set_target_temperature/command"
	r := inputNumberCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(len(matches), 0, "no matches")
}

func TestSlugCommandParseWithUUIDSlug(t *testing.T) {

	assert := assert.New(t)

	// omnia node ids are UUIDs; slugs replace hyphens with underscores
	baseTopic := "hive2mqtt"
	topic := "hive2mqtt/number/2d27a7d2_5b17_4bd2_a533_43267837cd3e_set_target_temperature/set"
	r := inputNumberCommandExtractor(baseTopic)
	matches := r.FindAllStringSubmatch(topic, 1)

	assert.Equal(matches[0][1], "2d27a7d2_5b17_4bd2_a533_43267837cd3e_set_target_temperature")
}
