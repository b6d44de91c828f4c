package temp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/sensors"

	"gitlab.com/tinyland/lab/bar-pulse/pkg/producers/shell"
)

// --- hwmon ---

// HwmonSource reads sysfs hwmon files and reports the highest value.
type HwmonSource struct {
	files    []string
	readFile func(string) ([]byte, error)
}

// NewHwmonSource returns a source over the given temperature files.
func NewHwmonSource(files []string) *HwmonSource {
	return &HwmonSource{files: files, readFile: os.ReadFile}
}

// Read returns the maximum reading. Files that cannot be read or parsed are
// skipped; it fails only when none yields a value.
func (s *HwmonSource) Read(_ context.Context) (float64, error) {
	var (
		maxTemp float64
		found   bool
		errs    []error
	)
	for _, f := range s.files {
		data, err := s.readFile(f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		t, err := parseHwmon(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f, err))
			continue
		}
		if !found || t > maxTemp {
			maxTemp = t
			found = true
		}
	}
	if !found {
		return 0, errors.Join(errs...)
	}
	return maxTemp, nil
}

// parseHwmon parses a hwmon reading. Values above 1000 are millidegrees.
func parseHwmon(data []byte) (float64, error) {
	t, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, err
	}
	if t > 1000 {
		t /= 1000
	}
	return t, nil
}

// --- gopsutil sensors ---

// SensorsSource reads temperatures through gopsutil and reports the highest
// reading among the sensors whose key starts with one of the prefixes.
type SensorsSource struct {
	prefixes []string
	temps    func(context.Context) ([]sensors.TemperatureStat, error)
}

// NewSensorsSource returns a source filtered by sensor key prefixes.
func NewSensorsSource(prefixes []string) *SensorsSource {
	return &SensorsSource{prefixes: prefixes, temps: sensors.TemperaturesWithContext}
}

// Read returns the highest matching sensor temperature.
func (s *SensorsSource) Read(ctx context.Context) (float64, error) {
	stats, err := s.temps(ctx)
	if err != nil && len(stats) == 0 {
		return 0, err
	}

	var (
		maxTemp float64
		found   bool
	)
	for _, st := range stats {
		if !s.matches(st.SensorKey) {
			continue
		}
		if !found || st.Temperature > maxTemp {
			maxTemp = st.Temperature
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("no sensor matches %v", s.prefixes)
	}
	return maxTemp, nil
}

func (s *SensorsSource) matches(key string) bool {
	if len(s.prefixes) == 0 {
		return true
	}
	for _, p := range s.prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// --- GPU vendor tools ---

// Vendor identifies the proprietary GPU tool to query.
type Vendor int

const (
	VendorCatalyst Vendor = iota
	VendorNvidiaSettings
	VendorNvidiaSMI
)

// ParseVendor maps a configuration string to a Vendor.
func ParseVendor(s string) (Vendor, error) {
	switch strings.ToLower(s) {
	case "catalyst", "ati", "amd":
		return VendorCatalyst, nil
	case "nvidia", "nvidia-settings":
		return VendorNvidiaSettings, nil
	case "nvidia-smi":
		return VendorNvidiaSMI, nil
	default:
		return 0, fmt.Errorf("unsupported GPU vendor %q", s)
	}
}

// command returns the tool invocation for v.
func (v Vendor) command() []string {
	switch v {
	case VendorCatalyst:
		return []string{"aticonfig", "--odgt"}
	case VendorNvidiaSettings:
		return []string{"nvidia-settings", "-q", "gpucoretemp", "-t"}
	default:
		return []string{"nvidia-smi", "--query-gpu=temperature.gpu", "--format=csv,noheader,nounits"}
	}
}

// parse extracts the temperature from the tool's output.
func (v Vendor) parse(output string) (float64, error) {
	switch v {
	case VendorCatalyst:
		return parseCatalyst(output)
	default:
		return parseMaxPerLine(output)
	}
}

// parseCatalyst reads the third line of `aticonfig --odgt`:
//
//	Sensor 0: Temperature - 48.00 C
func parseCatalyst(output string) (float64, error) {
	lines := strings.Split(output, "\n")
	if len(lines) < 3 {
		return 0, fmt.Errorf("aticonfig: short output (%d lines)", len(lines))
	}
	fields := strings.Fields(lines[2])
	if len(fields) < 5 {
		return 0, fmt.Errorf("aticonfig: unexpected line %q", lines[2])
	}
	return strconv.ParseFloat(fields[4], 64)
}

// parseMaxPerLine parses one number per line (one per GPU) and returns the
// highest.
func parseMaxPerLine(output string) (float64, error) {
	var (
		maxTemp float64
		found   bool
	)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t, err := strconv.ParseFloat(line, 64)
		if err != nil {
			continue
		}
		if !found || t > maxTemp {
			maxTemp = t
			found = true
		}
	}
	if !found {
		return 0, fmt.Errorf("no temperature in %q", strings.TrimSpace(output))
	}
	return maxTemp, nil
}

// GPUSource shells out to the vendor tool.
type GPUSource struct {
	vendor Vendor
	cmd    shell.Commander
}

// NewGPUSource returns a source for the given vendor tool.
func NewGPUSource(v Vendor, cmd shell.Commander) *GPUSource {
	if cmd == nil {
		cmd = shell.Exec{}
	}
	return &GPUSource{vendor: v, cmd: cmd}
}

// Read runs the vendor tool and parses its output.
func (s *GPUSource) Read(ctx context.Context) (float64, error) {
	out, err := s.cmd.Output(ctx, s.vendor.command())
	if err != nil {
		return 0, err
	}
	return s.vendor.parse(out)
}

// --- hddtemp daemon ---

const (
	defaultHDDTempHost = "127.0.0.1"
	defaultHDDTempPort = 7634
	hddtempAttempts    = 3
)

// HDDTempSource queries the hddtemp daemon, which answers every connection
// with records of the form |/dev/sda|MODEL|38|C| and closes.
type HDDTempSource struct {
	addr   string
	device string
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewHDDTempSource returns a source for the daemon at host:port. An empty
// device reports the hottest disk.
func NewHDDTempSource(host string, port int, device string) *HDDTempSource {
	if host == "" {
		host = defaultHDDTempHost
	}
	if port == 0 {
		port = defaultHDDTempPort
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	return &HDDTempSource{
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		device: device,
		dial:   d.DialContext,
	}
}

// Read fetches and parses the daemon's answer. hddtemp occasionally sends an
// empty or truncated record; those are retried a bounded number of times.
func (s *HDDTempSource) Read(ctx context.Context) (float64, error) {
	var lastErr error
	for i := 0; i < hddtempAttempts; i++ {
		data, err := s.fetch(ctx)
		if err != nil {
			return 0, err
		}
		t, err := parseHDDTemp(data, s.device)
		if err == nil || errors.Is(err, ErrAsleep) {
			return t, err
		}
		lastErr = err
	}
	return 0, lastErr
}

func (s *HDDTempSource) fetch(ctx context.Context) ([]byte, error) {
	conn, err := s.dial(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("connect hddtemp: %w", err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	}
	data, err := io.ReadAll(io.LimitReader(conn, 4096))
	if err != nil {
		return nil, fmt.Errorf("read hddtemp: %w", err)
	}
	return data, nil
}

// parseHDDTemp extracts the temperature for device (or the hottest disk when
// device is empty) from concatenated hddtemp records.
func parseHDDTemp(data []byte, device string) (float64, error) {
	body := strings.Trim(string(bytes.TrimSpace(data)), "|")
	if body == "" {
		return 0, errors.New("hddtemp: empty response")
	}

	var (
		maxTemp float64
		found   bool
		asleep  bool
	)
	for _, rec := range strings.Split(body, "||") {
		fields := strings.Split(rec, "|")
		if len(fields) < 4 {
			continue
		}
		if device != "" && fields[0] != device {
			continue
		}
		t, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			// SLP, UNK, NA: the drive is spun down or has no sensor.
			asleep = true
			continue
		}
		if !found || t > maxTemp {
			maxTemp = t
			found = true
		}
	}
	switch {
	case found:
		return maxTemp, nil
	case asleep:
		return 0, ErrAsleep
	default:
		return 0, fmt.Errorf("hddtemp: incomplete response %q", body)
	}
}
