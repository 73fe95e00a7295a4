// Package device provides the runtime that drives field devices.
//
// Each configured device (a periodic sensor or a bistable actuator) gets
// a Runtime that loops forever:
//
//	sensor:   Acquire → Persist → Publish → Sleep(collectInterval)
//	actuator: Actuate(status) → Persist → Publish → Sleep(on|off interval) → Flip
//
// Faults in a step are logged with the device id and step name, and the
// cycle continues. Remote commands arrive on the device command topic,
// on the transport's goroutine, and change intervals at runtime:
//
//	{"setCollectInterval": 30}  → {"ci": 30, "setCollectInterval_info": "Updated to 30 seconds", "setCollectInterval_status": "OK"}
//
// The new value is written to the ConfigStore before it becomes visible
// to the loop, which picks it up at its next sleep.
//
// # Usage
//
//	id, _ := device.NewIdentity("dht22_01", apiKey)
//	sensor, err := device.NewClimateSensor(id, hw, settings)
//	if err != nil {
//	    return err
//	}
//	rt := device.NewRuntime(sensor, channel, sink, settings)
//	rt.SetLogger(log)
//
//	sup := device.NewSupervisor(rt)
//	return sup.Run(ctx) // returns after ctx is cancelled
package device
