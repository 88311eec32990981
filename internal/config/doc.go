// Package config 负责解析 agentpactd 启动所需的 JSON 配置，
// 并为缺省字段填充可运行的默认值。
package config
