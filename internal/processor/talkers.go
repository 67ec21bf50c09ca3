// internal/processor/talkers.go
package processor

// DefaultTalkers maps NMEA 0183 talker IDs to sensor instances. Every common
// talker resolves to the primary instance; configuration overrides entries
// when a vessel carries duplicated instruments.
var DefaultTalkers = map[string]uint32{
	"II": 0, // integrated instrumentation
	"IN": 0, // integrated navigation
	"SD": 0, // depth sounder
	"GP": 0, // GPS
	"GN": 0, // GNSS
	"GL": 0, // GLONASS
	"HC": 0, // magnetic compass
	"HE": 0, // gyro compass
	"WI": 0, // weather instruments
	"VW": 0, // mechanical speed log
	"YX": 0, // transducer
	"ER": 0, // engine room monitoring
	"EC": 0, // ECDIS
}
