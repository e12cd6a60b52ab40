package services

import (
	"errors"
	"testing"

	"github.com/ruaan-deysel/battcorrelate/daemon/domain"
	"github.com/ruaan-deysel/battcorrelate/daemon/pack"
)

func TestCreateOrchestrator(t *testing.T) {
	hub := domain.NewEventBus(10)
	ctx := &domain.Context{
		Hub:    hub,
		Config: domain.Config{Version: "test", Port: 8080},
	}

	o := CreateOrchestrator(ctx)
	if o == nil {
		t.Fatal("CreateOrchestrator returned nil")
	}
	if o.ctx != ctx {
		t.Error("Orchestrator ctx not set correctly")
	}
}

func TestValidateMode(t *testing.T) {
	tests := []struct {
		name    string
		cfg     domain.Config
		wantErr bool
	}{
		{"no mode set", domain.Config{}, true},
		{"virtual board", domain.Config{VirtualBoard: true}, false},
		{"serial port", domain.Config{SerialPort: "/dev/ttyUSB0"}, false},
		{"bridge without port", domain.Config{Bridge: true, BridgeTwinURL: "http://twin"}, true},
		{"bridge without twin url", domain.Config{Bridge: true, SerialPort: "/dev/ttyUSB0"}, true},
		{"bridge fully configured", domain.Config{Bridge: true, SerialPort: "/dev/ttyUSB0", BridgeTwinURL: "http://twin"}, false},
		{"virtual board and serial port both set", domain.Config{VirtualBoard: true, SerialPort: "/dev/ttyUSB0"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := CreateOrchestrator(&domain.Context{Hub: domain.NewEventBus(1), Config: tt.cfg})
			err := o.validateMode()
			if (err != nil) != tt.wantErr {
				t.Errorf("validateMode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.wantErr && !errors.Is(err, pack.ErrConfigInvalid) {
				t.Errorf("expected error to wrap pack.ErrConfigInvalid, got %v", err)
			}
		})
	}
}
