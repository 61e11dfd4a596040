// Package devicescan enumerates candidate ALSA playback devices for the
// --list-devices flag. It is purely informational: a failure here
// degrades to an empty list with a logged warning rather than blocking
// playback, since it never gates the Jukebox/Player path. Grounded on
// the "sound" subsystem enumeration the teacher does directly against
// libudev in cm108.go, rewired onto the jochenvg/go-udev Go wrapper
// instead of raw cgo.
package devicescan

import (
	"github.com/charmbracelet/log"
	"github.com/jochenvg/go-udev"
)

// Device is one enumerated sound-card node.
type Device struct {
	Name        string
	Description string
}

// List enumerates devices in the "sound" udev subsystem. On any udev
// failure it logs a warning and returns an empty list.
func List(logger *log.Logger) []Device {
	u := udev.Udev{}
	e := u.NewEnumerate()

	if err := e.AddMatchSubsystem("sound"); err != nil {
		logger.Warn("udev enumeration unavailable", "err", err)
		return nil
	}

	devices, err := e.Devices()
	if err != nil {
		logger.Warn("udev device scan failed", "err", err)
		return nil
	}

	var out []Device
	for _, d := range devices {
		node := d.Devnode()
		if node == "" {
			continue
		}
		desc := d.PropertyValue("ID_MODEL")
		if desc == "" {
			desc = d.Syspath()
		}
		out = append(out, Device{Name: node, Description: desc})
	}

	return out
}
