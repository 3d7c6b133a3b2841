//go:build linux

// Package xserver starts a private headless X server so the window surface
// can run without a desktop.
package xserver

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/BurntSushi/xgb"
)

const (
	socketDir = "/tmp/.X11-unix"
	lockDir   = "/tmp"
)

type XServer struct {
	Display    string
	Xauthority string
	cmd        *exec.Cmd
	exited     chan struct{}
	tmpDir     string
}

// StartXvfb launches Xvfb on a free display with a fresh auth cookie and
// waits until it accepts connections.
func StartXvfb(width, height int) (*XServer, error) {
	if _, err := exec.LookPath("Xvfb"); err != nil {
		return nil, fmt.Errorf("Xvfb not found: install xvfb or pass -display")
	}

	display := fmt.Sprintf(":%d", findAvailableDisplay(socketDir, lockDir))
	tmpDir, err := os.MkdirTemp("", "xsshost-x-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	xauth := filepath.Join(tmpDir, "Xauthority")
	xauthCmd := exec.Command("xauth", "-f", xauth, "add", display, "MIT-MAGIC-COOKIE-1", generateCookie())
	if out, err := xauthCmd.CombinedOutput(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("xauth add: %w: %s", err, out)
	}

	xlog, err := os.Create(filepath.Join(tmpDir, "xvfb.log"))
	if err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("create xvfb log: %w", err)
	}

	log.Printf("starting Xvfb on %s (%dx%d)", display, width, height)
	cmd := exec.Command("Xvfb", xvfbArgs(display, xauth, width, height)...)
	cmd.Stdout = xlog
	cmd.Stderr = xlog
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:    true,
		Pdeathsig: syscall.SIGTERM,
	}
	if err := cmd.Start(); err != nil {
		xlog.Close()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("start Xvfb: %w", err)
	}
	xlog.Close()

	xs := &XServer{Display: display, Xauthority: xauth, cmd: cmd, exited: make(chan struct{}), tmpDir: tmpDir}
	go func() {
		cmd.Wait()
		close(xs.exited)
	}()
	if err := xs.waitReady(10 * time.Second); err != nil {
		xs.Stop()
		return nil, fmt.Errorf("Xvfb not ready: %w", err)
	}
	log.Printf("Xvfb ready on %s", display)
	return xs, nil
}

func xvfbArgs(display, xauth string, width, height int) []string {
	return []string{
		display,
		"-screen", "0", fmt.Sprintf("%dx%dx24", width, height),
		"-auth", xauth,
		"-nolisten", "tcp",
		"-noreset",
	}
}

func (xs *XServer) waitReady(timeout time.Duration) error {
	os.Setenv("XAUTHORITY", xs.Xauthority)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case <-xs.exited:
			xs.dumpLog()
			return fmt.Errorf("Xvfb exited on %s", xs.Display)
		default:
		}
		if conn, err := xgb.NewConnDisplay(xs.Display); err == nil {
			conn.Close()
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	xs.dumpLog()
	return fmt.Errorf("timeout waiting for X server on %s", xs.Display)
}

func (xs *XServer) dumpLog() {
	if data, err := os.ReadFile(filepath.Join(xs.tmpDir, "xvfb.log")); err == nil && len(data) > 0 {
		log.Printf("--- Xvfb log ---\n%s--- end Xvfb log ---", data)
	}
}

func (xs *XServer) Stop() {
	if xs.cmd != nil && xs.cmd.Process != nil {
		log.Printf("stopping Xvfb")
		xs.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-xs.exited:
		case <-time.After(5 * time.Second):
			xs.cmd.Process.Kill()
		}
	}

	num := xs.Display[1:]
	os.Remove(filepath.Join(lockDir, ".X"+num+"-lock"))
	os.Remove(filepath.Join(socketDir, "X"+num))
	if xs.tmpDir != "" {
		os.RemoveAll(xs.tmpDir)
	}
}

func findAvailableDisplay(sockets, locks string) int {
	for i := 1; i <= 99; i++ {
		_, sockErr := os.Stat(filepath.Join(sockets, fmt.Sprintf("X%d", i)))
		_, lockErr := os.Stat(filepath.Join(locks, fmt.Sprintf(".X%d-lock", i)))
		if os.IsNotExist(sockErr) && os.IsNotExist(lockErr) {
			return i
		}
	}
	return 99
}

func generateCookie() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "deadbeefdeadbeefdeadbeefdeadbeef"
	}
	return hex.EncodeToString(buf)
}
