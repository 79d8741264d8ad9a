package gpio

import "testing"

func TestMockDriver_DefaultsHigh(t *testing.T) {
	m := &MockDriver{}
	l, err := m.ReadPin(17)
	if err != nil {
		t.Fatalf("ReadPin: %v", err)
	}
	if l != High {
		t.Errorf("unset pin = %v, want High (pull-up)", l)
	}
}

func TestMockDriver_WriteThenRead(t *testing.T) {
	m := &MockDriver{}
	if err := m.SetupPin(27, Output); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePin(27, Low); err != nil {
		t.Fatal(err)
	}
	if l, _ := m.ReadPin(27); l != Low {
		t.Errorf("pin 27 = %v, want Low", l)
	}
	m.Set(27, High)
	if m.Get(27) != High {
		t.Errorf("pin 27 = %v after Set, want High", m.Get(27))
	}
}

func TestNewDriver_Mock(t *testing.T) {
	d, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(true): %v", err)
	}
	if _, ok := d.(*MockDriver); !ok {
		t.Errorf("driver = %T, want *MockDriver", d)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
