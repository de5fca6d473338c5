package flashlib

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDeviceInfoAndStatus(t *testing.T) {
	_, u := newTestUpdater(t, func(cmd Command, data string) []string {
		switch cmd {
		case CmdGetInfo:
			return []string{`OK:{"success":true,"current_mode":"Update Mode","version":"2.0.1","chip":"esp32s3"}`}
		case CmdGetStatus:
			return []string{`OK:{"success":true,"state":"IDLE","update_active":false,"received":0}`}
		}
		return okDeviceHandler(cmd, data)
	}, nil)

	ctx := context.Background()
	if err := u.Connect(ctx); err != nil {
		t.Fatalf("Connect: %s", err.Error())
	}

	info, err := u.Info(ctx)
	if err != nil {
		t.Fatalf("Info: %s", err.Error())
	}
	if info.Mode != "Update Mode" || info.Version != "2.0.1" {
		t.Errorf("info = %+v", info)
	}
	if !strings.Contains(string(info.Raw), "esp32s3") {
		t.Error("Raw does not carry the device-specific fields")
	}

	status, err := u.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %s", err.Error())
	}
	if status.State != "IDLE" || status.UpdateActive {
		t.Errorf("status = %+v", status)
	}
}

func TestDeviceCommandsRequireConnection(t *testing.T) {
	_, u := newTestUpdater(t, okDeviceHandler, nil)
	ctx := context.Background()
	if _, err := u.Info(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Info = %v, want ErrNotConnected", err)
	}
	if err := u.Restart(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Restart = %v, want ErrNotConnected", err)
	}
}

func TestRestartToleratesSilentDevice(t *testing.T) {
	// A rebooting device typically drops the line before answering RESTART;
	// the resulting response timeout is not a failure.
	_, u := newTestUpdater(t, func(cmd Command, data string) []string {
		if cmd == CmdRestart {
			return nil
		}
		return okDeviceHandler(cmd, data)
	}, nil)

	ctx := context.Background()
	if err := u.Connect(ctx); err != nil {
		t.Fatalf("Connect: %s", err.Error())
	}
	if err := u.Restart(ctx); err != nil {
		t.Errorf("Restart = %v, want nil on response timeout", err)
	}
}

func TestRestartPropagatesRejection(t *testing.T) {
	_, u := newTestUpdater(t, func(cmd Command, data string) []string {
		if cmd == CmdRestart {
			return []string{`ERROR:{"success":false,"message":"update pending"}`}
		}
		return okDeviceHandler(cmd, data)
	}, nil)

	ctx := context.Background()
	if err := u.Connect(ctx); err != nil {
		t.Fatalf("Connect: %s", err.Error())
	}
	err := u.Restart(ctx)
	var de *DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("Restart = %v, want DeviceError", err)
	}
}

func TestDeviceCommandRejection(t *testing.T) {
	_, u := newTestUpdater(t, func(cmd Command, data string) []string {
		if cmd == CmdValidateFirmware {
			return []string{`ERROR:{"success":false,"message":"no staged image"}`}
		}
		return okDeviceHandler(cmd, data)
	}, nil)

	ctx := context.Background()
	if err := u.Connect(ctx); err != nil {
		t.Fatalf("Connect: %s", err.Error())
	}
	err := u.ValidateFirmware(ctx)
	var de *DeviceError
	if !errors.As(err, &de) {
		t.Fatalf("ValidateFirmware = %v, want DeviceError", err)
	}
	if de.Command != CmdValidateFirmware || de.Message != "no staged image" {
		t.Errorf("DeviceError = %+v", de)
	}
}
