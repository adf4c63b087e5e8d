// Package factory 按配置里的名称（openai、anthropic、google、fireworks、custom）构造 llm.Provider，
// 主模型与视觉模型都经由这里创建，provider 子包因此不必依赖 llm 之外的包。
package factory
