//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// SysfsRoot is the sysfs PWM class directory.
var SysfsRoot = "/sys/class/pwm"

// SysfsPWM is one exported channel of a sysfs pwmchip.
type SysfsPWM struct {
	dir      string
	periodNs int
}

// OpenSysfsPWM exports channel on pwmchip<chip>, sets its period and enables
// it at zero duty.
func OpenSysfsPWM(chip, channel, periodNs int) (*SysfsPWM, error) {
	chipDir := filepath.Join(SysfsRoot, "pwmchip"+strconv.Itoa(chip))
	dir := filepath.Join(chipDir, "pwm"+strconv.Itoa(channel))

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if err := writeSysfs(filepath.Join(chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, err
		}
		// udev needs a moment to fix permissions on the new channel.
		for i := 0; i < 20; i++ {
			if _, err := os.Stat(filepath.Join(dir, "period")); err == nil {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	p := &SysfsPWM{dir: dir, periodNs: periodNs}
	if err := writeSysfs(filepath.Join(dir, "duty_cycle"), "0"); err != nil {
		return nil, err
	}
	if err := writeSysfs(filepath.Join(dir, "period"), strconv.Itoa(periodNs)); err != nil {
		return nil, err
	}
	if err := writeSysfs(filepath.Join(dir, "enable"), "1"); err != nil {
		return nil, err
	}
	return p, nil
}

// SetDuty sets the duty cycle to level/top of the period.
func (p *SysfsPWM) SetDuty(level, top uint32) error {
	if top == 0 {
		return fmt.Errorf("pwm %s: zero top", p.dir)
	}
	if level > top {
		level = top
	}
	ns := int(uint64(p.periodNs) * uint64(level) / uint64(top))
	return writeSysfs(filepath.Join(p.dir, "duty_cycle"), strconv.Itoa(ns))
}

// Close drives the channel to zero duty and disables it.
func (p *SysfsPWM) Close() error {
	if err := writeSysfs(filepath.Join(p.dir, "duty_cycle"), "0"); err != nil {
		return err
	}
	return writeSysfs(filepath.Join(p.dir, "enable"), "0")
}

func writeSysfs(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
