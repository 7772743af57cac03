// Package infra contains technical adapters such as the MQTT state
// publisher and metrics exporters. These packages depend only on the
// interfaces defined in the core packages.
package infra
