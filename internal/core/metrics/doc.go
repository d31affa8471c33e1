// Package metrics 提供连接层指标
//
// Reporter 接收 swarm 的连接、握手、流事件。Collector 把它们导出为
// Prometheus 指标，注册到调用方提供的 Registerer；本包不提供 HTTP 导出端点。
//
//	reg := prometheus.NewRegistry()
//	c, err := metrics.NewCollector(reg, "substrate")
//	c.ConnOpened(types.DirOutbound, types.TransportTCP)
package metrics
