// Copyright 2025 The FloodGuard Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/heyubaidullah/floodguard-sub000/server/event"
)

// QueueMetricsCollector exposes per-task queue statistics as Prometheus
// metrics. Samples are read from the queue manager at scrape time, so the
// collector holds no state of its own.
type QueueMetricsCollector struct {
	queues event.QueueManager

	queueSize     *prometheus.Desc
	consumers     *prometheus.Desc
	processed     *prometheus.Desc
	failed        *prometheus.Desc
	throughput    *prometheus.Desc
	avgProcessing *prometheus.Desc
	errorRate     *prometheus.Desc
	queueCount    *prometheus.Desc
}

var _ prometheus.Collector = (*QueueMetricsCollector)(nil)

// NewQueueMetricsCollector creates a collector over the given queue manager.
// Register it with a prometheus.Registerer to expose the metrics.
func NewQueueMetricsCollector(queues event.QueueManager) *QueueMetricsCollector {
	taskLabels := []string{"task_id"}
	return &QueueMetricsCollector{
		queues: queues,
		queueSize: prometheus.NewDesc(
			"floodguard_queue_size",
			"Number of events currently buffered in the task's queue.",
			taskLabels, nil),
		consumers: prometheus.NewDesc(
			"floodguard_queue_consumers",
			"Number of active subscribers on the task's queue.",
			taskLabels, nil),
		processed: prometheus.NewDesc(
			"floodguard_queue_processed_total",
			"Total events processed successfully for the task.",
			taskLabels, nil),
		failed: prometheus.NewDesc(
			"floodguard_queue_failed_total",
			"Total events whose processing failed for the task.",
			taskLabels, nil),
		throughput: prometheus.NewDesc(
			"floodguard_queue_throughput",
			"Recent events per second over the consumer's sampling window.",
			taskLabels, nil),
		avgProcessing: prometheus.NewDesc(
			"floodguard_queue_avg_processing_milliseconds",
			"Mean per-event processing time over the sampling window.",
			taskLabels, nil),
		errorRate: prometheus.NewDesc(
			"floodguard_queue_error_rate",
			"Fraction of processed events that failed.",
			taskLabels, nil),
		queueCount: prometheus.NewDesc(
			"floodguard_queues",
			"Number of registered task queues.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *QueueMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueSize
	ch <- c.consumers
	ch <- c.processed
	ch <- c.failed
	ch <- c.throughput
	ch <- c.avgProcessing
	ch <- c.errorRate
	ch <- c.queueCount
}

// Collect implements prometheus.Collector.
func (c *QueueMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	taskIDs := c.queues.TaskIDs()
	ch <- prometheus.MustNewConstMetric(c.queueCount, prometheus.GaugeValue, float64(len(taskIDs)))

	for _, taskID := range taskIDs {
		stats, err := c.queues.GetStats(taskID)
		if err != nil {
			// The queue was closed between TaskIDs and GetStats.
			continue
		}

		ch <- prometheus.MustNewConstMetric(c.queueSize, prometheus.GaugeValue, float64(stats.Size), taskID)
		ch <- prometheus.MustNewConstMetric(c.consumers, prometheus.GaugeValue, float64(stats.Consumers), taskID)
		ch <- prometheus.MustNewConstMetric(c.processed, prometheus.CounterValue, float64(stats.Processed), taskID)
		ch <- prometheus.MustNewConstMetric(c.failed, prometheus.CounterValue, float64(stats.Failed), taskID)
		ch <- prometheus.MustNewConstMetric(c.throughput, prometheus.GaugeValue, stats.Throughput, taskID)
		ch <- prometheus.MustNewConstMetric(c.avgProcessing, prometheus.GaugeValue, stats.AvgProcessingTime, taskID)
		ch <- prometheus.MustNewConstMetric(c.errorRate, prometheus.GaugeValue, stats.ErrorRate, taskID)
	}
}
