package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgSim = `{
  "panel": {
    "timeout_ms": 5000,
    "debounce_ms": 10,
    "tick_ratio": 100,
    "fast_tick_us": 1,
    "max_ack_retry": 3
  },
  "heartbeat": {
    "interval": 2
  }
}`

const cfgPico = `{
  "panel": {
    "timeout_ms": 5000,
    "addr": 39,
    "debounce_ms": 10,
    "tick_ratio": 100,
    "fast_tick_us": 1,
    "max_ack_retry": 3
  },
  "heartbeat": {
    "interval": 2
  },
  "bridge": {
    "transport": {
      "type": "uart",
      "uart": {
        "baud": 115200,
        "tx_pin": 0,
        "rx_pin": 1
      }
    }
  }
}`

var embeddedConfigs = map[string][]byte{
	"sim":  []byte(cfgSim),
	"pico": []byte(cfgPico),
}
