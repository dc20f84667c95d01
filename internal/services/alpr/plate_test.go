package alpr

import (
	"testing"

	"platewatch/internal/services/detector"
)

func TestValidPlateStandardFormat(t *testing.T) {
	cases := []struct {
		text  string
		class detector.Class
		want  bool
	}{
		{"ABC123", detector.ClassCar, true},
		{"abc 123", detector.ClassCar, true},
		{"ABC-123", detector.ClassTruck, true},
		{"ABC123", detector.ClassBus, true},
		{"AB1234", detector.ClassCar, false},
		{"ABCD123", detector.ClassCar, false},
		{"ABC12", detector.ClassCar, false},
		{"", detector.ClassCar, false},
		{"ABC12D", detector.ClassCar, false},
	}
	for _, tc := range cases {
		if got := ValidPlate(tc.text, tc.class); got != tc.want {
			t.Errorf("ValidPlate(%q, %s) = %v, want %v", tc.text, tc.class, got, tc.want)
		}
	}
}

func TestValidPlateMotorcycleFormat(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"ABC12D", true},
		{"abc12d", true},
		{"ABC123", false},
		{"ABC1D2", false},
		{"ABC12", false},
	}
	for _, tc := range cases {
		if got := ValidPlate(tc.text, detector.ClassMotorcycle); got != tc.want {
			t.Errorf("ValidPlate(%q, motorcycle) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestNormalizePlate(t *testing.T) {
	if got := NormalizePlate(" abc-12 3 "); got != "ABC123" {
		t.Fatalf("NormalizePlate = %q, want ABC123", got)
	}
}

func TestFirstValidPlateSkipsNoise(t *testing.T) {
	output := []byte("loading model weights\n{\"text\":\"??????\",\"confidence\":0.2}\n{\"text\":\"abc123\",\"confidence\":0.93}\n")
	plate, found := firstValidPlate(output, detector.ClassCar)
	if !found {
		t.Fatal("expected a valid plate in output")
	}
	if plate != "ABC123" {
		t.Fatalf("plate = %q, want ABC123", plate)
	}
}

func TestFirstValidPlateNoneFound(t *testing.T) {
	output := []byte("{\"text\":\"XYZ\",\"confidence\":0.5}\n")
	if _, found := firstValidPlate(output, detector.ClassCar); found {
		t.Fatal("expected no valid plate")
	}
}
