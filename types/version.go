package types

// Version is the canonical teeline version, shared by the CLI, the port
// protocol and the ingest wire format.
const Version = "0.3.0"

// DefaultChannelName is the name relays announce in their Hello.
const DefaultChannelName = "llm-bytes"

// DefaultHandshakeName is the private channel name between relay and interceptor.
const DefaultHandshakeName = "llm_bytes_port"
