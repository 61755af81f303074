package hardware

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CodedInternet/gosbrick/onboard/ble"
	deverrors "github.com/CodedInternet/gosbrick/onboard/errors"
	. "github.com/smartystreets/goconvey/convey"
)

type testTransport struct {
	lock       sync.Mutex
	txerr      bool
	txCount    int
	lastTx     []byte
	lastHandle ble.Handle
	lastQuery  string
	responses  map[string][]byte
	firmware   string
}

func newTestTransport() *testTransport {
	return &testTransport{
		responses: map[string][]byte{
			string([]byte{CMD_QUERY_ADC, ADC_VOLTAGE}):     {0x20, 0x4E},             // 20000
			string([]byte{CMD_QUERY_ADC, ADC_TEMPERATURE}): {0xD8, 0x59},             // 23000
			string([]byte{CMD_GET_UPTIME}):                 {0x84, 0x03, 0x00, 0x00}, // 900
			string([]byte{CMD_GET_RESETS}):                 {0x07, 0x00, 0x00, 0x00},
		},
		firmware: "4.17\x00",
	}
}

func (t *testTransport) Write(handle ble.Handle, data []byte) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.txCount++
	t.lastTx = append([]byte(nil), data...)
	t.lastHandle = handle
	if handle == ble.HANDLE_REMOTE_CONTROL {
		t.lastQuery = string(data)
	}
	if t.txerr {
		return errors.New("this is a simulated tx error")
	}
	return nil
}

func (t *testTransport) Read(handle ble.Handle) ([]byte, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	switch handle {
	case ble.HANDLE_FIRMWARE:
		return []byte(t.firmware), nil
	case ble.HANDLE_REMOTE_CONTROL:
		return t.responses[t.lastQuery], nil
	}
	return nil, ble.ERR_UNKNOWN_HANDLE
}

func (t *testTransport) Close() error { return nil }

func createTestNode() (tTransport *testTransport, node *Node) {
	tTransport = newTestTransport()
	node = NewNode(tTransport, DefaultHandles())
	node.ReadDelay = 0
	return
}

func TestNode(t *testing.T) {
	Convey("quickdrive payloads go to the quickdrive handle", t, func() {
		tTransport, node := createTestNode()

		err := node.WriteQuickDrive(Payload{0xFE, 0x7F, 0x02, 0x01}, false)
		So(err, ShouldBeNil)
		So(tTransport.lastHandle, ShouldEqual, ble.HANDLE_QUICKDRIVE)
		So(tTransport.lastTx, ShouldResemble, []byte{0xFE, 0x7F, 0x02, 0x01})

		Convey("keep alive writes are identical on the wire", func() {
			err := node.WriteQuickDrive(Payload{0xFE, 0x7F, 0x02, 0x01}, true)
			So(err, ShouldBeNil)
			So(tTransport.txCount, ShouldEqual, 2)
			So(tTransport.lastTx, ShouldResemble, []byte{0xFE, 0x7F, 0x02, 0x01})
		})
	})

	Convey("transport failures are wrapped", t, func() {
		tTransport, node := createTestNode()
		tTransport.txerr = true

		err := node.WriteQuickDrive(BrakePayload(), false)
		var terr *deverrors.TransportError
		So(errors.As(err, &terr), ShouldBeTrue)
		So(terr.Op, ShouldEqual, "write")
		So(terr.Handle, ShouldEqual, uint16(ble.HANDLE_QUICKDRIVE))

		_, err = node.Voltage()
		So(errors.As(err, &terr), ShouldBeTrue)
	})

	Convey("telemetry registers decode little endian", t, func() {
		tTransport, node := createTestNode()

		v, err := node.Voltage()
		So(err, ShouldBeNil)
		So(v, ShouldAlmostEqual, 7.57206, 0.0001)
		So(tTransport.lastTx, ShouldResemble, []byte{CMD_QUERY_ADC, ADC_VOLTAGE})

		temp, err := node.Temperature()
		So(err, ShouldBeNil)
		So(temp, ShouldAlmostEqual, 33.508108, 0.0001)

		up, err := node.Uptime()
		So(err, ShouldBeNil)
		So(up, ShouldEqual, 90*time.Second)

		resets, err := node.Resets()
		So(err, ShouldBeNil)
		So(resets, ShouldEqual, 7)

		all, err := node.Telemetry()
		So(err, ShouldBeNil)
		So(all.Resets, ShouldEqual, 7)
		So(all.Uptime, ShouldEqual, 90*time.Second)

		Convey("short answers are rejected", func() {
			tTransport.responses[string([]byte{CMD_GET_RESETS})] = []byte{0x01}
			_, err := node.Resets()
			So(err, ShouldEqual, ERR_SHORT_RESPONSE)
		})
	})

	Convey("led test drives the led channel", t, func() {
		tTransport, node := createTestNode()
		So(node.LEDTest(), ShouldBeNil)
		So(tTransport.lastHandle, ShouldEqual, ble.HANDLE_REMOTE_CONTROL)
		So(tTransport.lastTx, ShouldResemble, []byte{0x01, 0x04, 0x00, 0xFF})
	})

	Convey("firmware gate", t, func() {
		tTransport, node := createTestNode()

		version, err := node.CheckFirmware("")
		So(err, ShouldBeNil)
		So(version, ShouldEqual, "4.17")

		Convey("older firmware is refused", func() {
			tTransport.firmware = "4.2"
			_, err := node.CheckFirmware("")
			So(err, ShouldNotBeNil)
		})

		Convey("a custom constraint is honoured", func() {
			tTransport.firmware = "4.2"
			_, err := node.CheckFirmware(">= 4.0")
			So(err, ShouldBeNil)
		})

		Convey("development builds are accepted", func() {
			tTransport.firmware = "DEV"
			_, err := node.CheckFirmware("")
			So(err, ShouldBeNil)
		})

		Convey("garbage is refused", func() {
			tTransport.firmware = "not a version"
			_, err := node.CheckFirmware("")
			So(err, ShouldNotBeNil)
		})
	})
}
