package onboard

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CodedInternet/gosbrick/onboard/ble"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
	. "github.com/smartystreets/goconvey/convey"
)

const testYaml = `
version: 1
name: crawler
address: "00:07:80:d0:57:bb"
firmware: ">= 4.0"
handles:
  quickdrive: "0x0020"
characteristics:
  "0x0020": 489a6ae0-c1ab-4c9c-bdb2-11d373c1b7fb
keepalive:
  interval: 100ms
  max: 5s
  safe_stop: false
mixer:
  left: 2
  right: 3
  invert_right: true
`

func TestConfigParsing(t *testing.T) {
	Convey("parsing is successful", t, func() {
		config, err := ParseConfig([]byte(testYaml))
		So(err, ShouldBeNil)
		So(config.Name, ShouldEqual, "crawler")
		So(config.Address, ShouldEqual, "00:07:80:d0:57:bb")
		So(config.Firmware, ShouldEqual, ">= 4.0")

		Convey("handles are read in gatttool notation", func() {
			So(config.Handles.QuickDrive, ShouldEqual, ble.Handle(0x20))
			So(config.Handles.RemoteControl, ShouldEqual, ble.HANDLE_REMOTE_CONTROL)
			So(config.Characteristics[ble.Handle(0x20)], ShouldEqual, ble.UUID_QUICKDRIVE)
			So(config.Characteristics[ble.HANDLE_FIRMWARE], ShouldEqual, ble.UUID_FIRMWARE)
		})

		Convey("keep alive settings are applied", func() {
			So(config.KeepAlive.Interval, ShouldEqual, 100*time.Millisecond)
			So(config.KeepAlive.Max, ShouldEqual, 5*time.Second)
			So(*config.KeepAlive.MaxFailures, ShouldEqual, hardware.KEEP_ALIVE_MAX_FAILURES)

			ka := hardware.NewKeepAlive(nil)
			config.KeepAlive.Apply(ka)
			So(ka.Interval, ShouldEqual, 100*time.Millisecond)
			So(ka.SafeStop, ShouldBeFalse)
		})

		Convey("mixer settings are read", func() {
			So(config.Mixer.Left, ShouldEqual, 2)
			So(config.Mixer.Right, ShouldEqual, 3)
			So(config.Mixer.InvertRight, ShouldBeTrue)
			So(config.Mixer.Deadzone, ShouldEqual, DefaultMixer().Deadzone)
		})
	})

	Convey("an empty file gives the defaults", t, func() {
		config, err := ParseConfig([]byte(""))
		So(err, ShouldBeNil)
		So(config.Version, ShouldEqual, CONFIG_VERSION)
		So(config.Name, ShouldEqual, "sbrick")
		So(config.ScanTimeout, ShouldEqual, SCAN_TIMEOUT)
		So(config.Handles, ShouldResemble, hardware.DefaultHandles())
		So(config.KeepAlive.Interval, ShouldEqual, hardware.KEEP_ALIVE_INTERVAL)
		So(config.KeepAlive.Max, ShouldEqual, hardware.KEEP_ALIVE_MAX_DURATION)
		So(*config.KeepAlive.SafeStop, ShouldBeTrue)
		So(config.Mixer, ShouldResemble, DefaultMixer())
	})

	Convey("bad configs are refused", t, func() {
		_, err := ParseConfig([]byte("version: 2"))
		So(err, ShouldNotBeNil)

		_, err = ParseConfig([]byte("handles:\n  quickdrive: nope"))
		So(err, ShouldNotBeNil)

		_, err = ParseConfig([]byte("mixer:\n  left: 1\n  right: 1"))
		So(err, ShouldNotBeNil)
	})

	Convey("keep alive timings must be positive", t, func() {
		for _, raw := range []string{
			"keepalive:\n  interval: -10ms\n",
			"keepalive:\n  max: -1s\n",
			"keepalive:\n  max_failures: -1\n",
		} {
			_, err := ParseConfig([]byte(raw))
			So(err, ShouldNotBeNil)
		}
	})

	Convey("an explicit max_failures of 0 is kept", t, func() {
		config, err := ParseConfig([]byte("keepalive:\n  max_failures: 0\n"))
		So(err, ShouldBeNil)
		So(*config.KeepAlive.MaxFailures, ShouldEqual, 0)

		ka := hardware.NewKeepAlive(nil)
		config.KeepAlive.Apply(ka)
		So(ka.MaxFailures, ShouldEqual, 0)
	})

	Convey("configs load from disk", t, func() {
		dir, err := ioutil.TempDir("", "sbrick")
		So(err, ShouldBeNil)
		defer os.RemoveAll(dir)

		filename := filepath.Join(dir, "sbrick.yaml")
		So(ioutil.WriteFile(filename, []byte(testYaml), 0644), ShouldBeNil)

		config, err := LoadConfig(filename)
		So(err, ShouldBeNil)
		So(config.Name, ShouldEqual, "crawler")

		_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
		So(err, ShouldNotBeNil)
	})
}
