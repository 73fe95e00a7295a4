// Package store persists per-device runtime settings in a KEY=VALUE file.
//
// Keys are prefixed with the device id, for example dht22_01_collectInterval
// or pump_01_status. The file uses dotenv syntax so that operators can edit
// it by hand; values written by the node survive restarts.
//
// One Store is shared by every device on the node. Writes are serialised
// and the file is replaced atomically, so concurrent updates from different
// devices never lose each other's keys.
package store
