// Package config 提供 Captain 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量（前缀 CAPTAIN_）的顺序叠加，
// 嵌套字段以下划线拼接，例如 CAPTAIN_LLM_MAIN_API_KEY。
package config
