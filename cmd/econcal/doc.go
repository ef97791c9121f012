// The econcal binary collects upcoming economic release events from national
// statistical agencies and central banks into one normalized feed.
//
// One-shot mode (the default) runs a single collection over the requested
// window and writes the feed and health report to the sink directory:
//
//	econcal -since 2026-06-01 -until 2026-06-30 -out feed.json
//
// With -serve the binary instead exposes the collection as an HTTP API and
// keeps running until SIGINT/SIGTERM:
//
//	econcal -serve -config config.yaml
//
// Configuration comes from an optional YAML file plus ECONCAL_* environment
// variables. With -strict the exit code reports a DEGRADED run, which lets
// cron wrappers page on silent feed loss.
package main
