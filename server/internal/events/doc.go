// Package events publishes a run.completed event to Kafka for every ingested
// run. Publish never blocks the ingestion path: events are queued and a
// background worker writes them with segmentio/kafka-go. When the queue is
// full new events are dropped and counted.
package events
