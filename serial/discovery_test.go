package serial

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

func stubPortsList(t *testing.T, ports []*enumerator.PortDetails, err error) {
	t.Helper()
	orig := getDetailedPortsList
	getDetailedPortsList = func() ([]*enumerator.PortDetails, error) { return ports, err }
	t.Cleanup(func() { getDetailedPortsList = orig })
}

func TestListCandidatePortsFiltersAndSorts(t *testing.T) {
	stubPortsList(t, []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: "0403", PID: "6001"},
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyACM0", IsUSB: true},
		{Name: "/dev/ttyUSB0", IsUSB: true},
	}, nil)

	names, err := ListCandidatePorts(DefaultCandidatePrefixes)
	require.NoError(t, err)
	require.Equal(t, []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyUSB1"}, names)
}

func TestListCandidatePortsNoFilter(t *testing.T) {
	stubPortsList(t, []*enumerator.PortDetails{
		{Name: "/dev/ttyS0"},
		{Name: "COM3"},
	}, nil)

	names, err := ListCandidatePorts(nil)
	require.NoError(t, err)
	require.Equal(t, []string{"/dev/ttyS0", "COM3"}, names)
}

func TestDiscoverPortsDetails(t *testing.T) {
	stubPortsList(t, []*enumerator.PortDetails{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "10c4", PID: "ea60", SerialNumber: "0001", Product: "CP2102"},
	}, nil)

	ports, err := DiscoverPorts([]string{"ttyUSB"})
	require.NoError(t, err)
	require.Len(t, ports, 1)
	require.Equal(t, "10c4", ports[0].VID)
	require.Equal(t, "CP2102", ports[0].Product)
	require.True(t, ports[0].IsUSB)
}

func TestDiscoverPortsError(t *testing.T) {
	stubPortsList(t, nil, errors.New("no sysfs"))

	_, err := ListCandidatePorts(DefaultCandidatePrefixes)
	require.Error(t, err)
	require.Contains(t, err.Error(), "enumerator error")
}
