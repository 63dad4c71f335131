package testers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/pathprobe/internal/network"
)

const speedtestOutput = `{"type":"log","timestamp":"2026-03-01T12:00:00Z","message":"Configuration - Couldn't resolve host name","level":"warning"}
{"type":"result","timestamp":"2026-03-01T12:00:30Z","ping":{"jitter":1.25,"latency":12.6},"download":{"bandwidth":12500000,"bytes":150000000,"elapsed":12000},"upload":{"bandwidth":2500000,"bytes":30000000,"elapsed":12000},"isp":"Example ISP","server":{"id":1234,"name":"Example Net","location":"Springfield"}}
`

func TestSpeedtest_Run(t *testing.T) {
	exec := new(network.MockCommandExecutor)
	exec.On("RunCommand", "speedtest", "--format=json", "--accept-license", "--accept-gdpr", "--server-id=1234").
		Return(speedtestOutput, nil)

	s := &Speedtest{Source: "pathprobe-speedtest", ServerID: "1234", Executor: exec}
	rec, err := s.Run(context.Background(), Target{})
	require.NoError(t, err)
	exec.AssertExpectations(t)

	assert.Equal(t, "Example Net - Springfield", rec.Values["server_name"])
	assert.Equal(t, 13, rec.Values["ping_time"])
	assert.Equal(t, 100.0, rec.Values["download_rate_mbps"])
	assert.Equal(t, 20.0, rec.Values["upload_rate_mbps"])
	assert.Equal(t, 30.0, rec.Values["mbytes_sent"])
	assert.Equal(t, 150.0, rec.Values["mbytes_received"])
	assert.Equal(t, 12.6, rec.Values["latency_ms"])
	assert.Equal(t, 1.25, rec.Values["jitter_ms"])
}

func TestSpeedtest_ErrorResult(t *testing.T) {
	exec := new(network.MockCommandExecutor)
	exec.On("RunCommand", "speedtest", "--format=json", "--accept-license", "--accept-gdpr").
		Return(`{"type":"log","level":"error","error":"Cannot open socket: Timeout occurred in connect."}`, errors.New("exit status 2"))

	s := &Speedtest{Executor: exec}
	_, err := s.Run(context.Background(), Target{})
	assert.ErrorIs(t, err, ErrTestExecution)
	assert.Contains(t, err.Error(), "Cannot open socket")
}

func TestSpeedtest_GarbageOutput(t *testing.T) {
	exec := new(network.MockCommandExecutor)
	exec.On("RunCommand", "speedtest", "--format=json", "--accept-license", "--accept-gdpr").
		Return("bash: speedtest: command not found", errors.New("exit status 127"))

	s := &Speedtest{Executor: exec}
	_, err := s.Run(context.Background(), Target{})
	assert.ErrorIs(t, err, ErrTestExecution)
}
