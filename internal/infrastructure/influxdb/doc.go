// Package influxdb records StarterKit telemetry in InfluxDB v2.
//
// Points written:
//
//	db_operations     tags operation, outcome; fields duration_ms, success
//	settings_changes  tag key; field count
//	db_pool           tag driver; pool statistics fields
//
// Writes go through the client's non-blocking write API and are flushed in
// batches (influxdb.batch_size points or every influxdb.flush_interval
// seconds). Write failures are delivered to the SetOnError callback.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//	db.SetObserver(client)
package influxdb
