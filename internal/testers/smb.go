package testers

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"grimm.is/pathprobe/internal/clock"
	"grimm.is/pathprobe/internal/export"
	"grimm.is/pathprobe/internal/network"
)

var smbGetRe = regexp.MustCompile(`of size (\d+) as`)

// SMB copies a file from a share with smbclient and records the
// transfer rate.
type SMB struct {
	Source   string
	Share    string
	File     string
	Username string
	Password string
	Binary   string
	Executor network.CommandExecutor
	Clock    clock.Clock
	// TempDir holds the credentials file; empty uses os.TempDir.
	TempDir string
}

func (s *SMB) Name() string { return "smb" }

// writeAuthFile keeps the password off the command line.
func (s *SMB) writeAuthFile() (string, error) {
	f, err := os.CreateTemp(s.TempDir, "smbauth-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := f.Chmod(0o600); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	if _, err := fmt.Fprintf(f, "username = %s\npassword = %s\n", s.Username, s.Password); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Run fetches File from //target.Host/Share into /dev/null.
func (s *SMB) Run(ctx context.Context, target Target) (*export.Record, error) {
	clk := clockOr(s.Clock)
	bin := s.Binary
	if bin == "" {
		bin = "smbclient"
	}

	args := []string{fmt.Sprintf("//%s/%s", target.Host, s.Share)}
	if s.Username != "" {
		auth, err := s.writeAuthFile()
		if err != nil {
			return nil, execErr(s.Name(), fmt.Errorf("failed to write credentials: %w", err))
		}
		defer os.Remove(auth)
		args = append(args, "-A", auth)
	} else {
		args = append(args, "-N")
	}
	args = append(args, "-c", fmt.Sprintf("get \"%s\" /dev/null", s.File))

	start := clk.Now()
	out, err := executorOr(s.Executor).RunCommand(ctx, bin, args...)
	elapsed := clk.Since(start)
	if err != nil {
		return nil, execErr(s.Name(), err)
	}

	m := smbGetRe.FindStringSubmatch(out)
	if m == nil {
		return nil, execErr(s.Name(), fmt.Errorf("unexpected smbclient output: %q", firstLine(out)))
	}
	size, _ := strconv.ParseInt(m[1], 10, 64)

	var rate float64
	if elapsed > 0 {
		rate = round2(float64(size*8) / elapsed.Seconds() / 1024 / 1024)
	}

	rec := export.NewRecord(s.Source, clk.Now())
	rec.Set("smb_host", target.Host).
		Set("filename", s.File).
		Set("bytes", size).
		Set("transfer_time", round2(elapsed.Seconds())).
		Set("rate", rate)
	return rec, nil
}
