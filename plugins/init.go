// Package plugins registers all built-in plugins.
package plugins

import (
	"firestige.xyz/wirelab/pkg/plugin"
	"firestige.xyz/wirelab/plugins/parser/stun"
	"firestige.xyz/wirelab/plugins/reporter/console"
	"firestige.xyz/wirelab/plugins/reporter/kafka"
	"firestige.xyz/wirelab/plugins/reporter/nats"
	"firestige.xyz/wirelab/plugins/reporter/redis"
)

func init() {
	plugin.RegisterParser("stun", stun.NewParser)

	plugin.RegisterReporter("console", console.NewConsoleReporter)
	plugin.RegisterReporter("kafka", kafka.NewKafkaReporter)
	plugin.RegisterReporter("nats", nats.NewNATSReporter)
	plugin.RegisterReporter("redis", redis.NewRedisReporter)
}
