// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 Captain 提供集中式的 TracerProvider 和 MeterProvider 配置。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务；
// 测试可以通过 WithSpanExporter 注入内存导出器。
package telemetry
