// Package agent 将纯计算核心（coordination、bounds）与链上验证合约、
// 本地镜像存储和通知队列装配成可执行的业务流程：发起与接受协调、
// 等待就绪并触发执行，以及在策略边界内代理受限调用。
package agent
