package log

// names of events written to events log by Event()
const (
	// server: "client" id, "addr" of the peer
	EventAccept = "accept"
	// server: "client" id
	EventDisconnect = "disconnect"
	// server: "clients" closed at teardown
	EventShutdown = "shutdown"
	// store: "path", "keys", "bytes"
	EventSave = "save"
	// store: "path", "keys"
	EventLoad = "load"
	// store: "path", "keys" loaded before the partial record
	EventLoadTruncated = "load_truncated"
)
