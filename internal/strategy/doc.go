// Package strategy 定义每个流量类别的 fetch/cache 步骤序列（profile），并提供统一的注册入口。
//
// 内置 profile 在 init() 中注册；App 可以按类别覆盖默认 profile。
// 解析后的 profile 总是以 fallback 步骤结尾，保证一次 dispatch 一定能产出响应。
package strategy
