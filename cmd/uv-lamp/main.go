// Command uv-lamp drives a UV lamp fixture: ballast power control, a radar
// proximity interlock, persisted settings, MQTT events and an HTTP status page.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/uv-lamp/internal/gpio"
	"github.com/sweeney/uv-lamp/internal/lamp"
	"github.com/sweeney/uv-lamp/internal/metrics"
	"github.com/sweeney/uv-lamp/internal/mqtt"
	"github.com/sweeney/uv-lamp/internal/persist"
	"github.com/sweeney/uv-lamp/internal/radar"
	"github.com/sweeney/uv-lamp/internal/safety"
	"github.com/sweeney/uv-lamp/internal/sense"
	"github.com/sweeney/uv-lamp/internal/status"
	"github.com/sweeney/uv-lamp/internal/tilt"
	"github.com/sweeney/uv-lamp/internal/timeutil"
	"github.com/sweeney/uv-lamp/internal/web"
)

// mqttQueueSize bounds events waiting for the publisher goroutine.
const mqttQueueSize = 64

// controlQueueSize bounds settings changes waiting for the control loop.
const controlQueueSize = 8

type config struct {
	poll       time.Duration
	broker     string
	heartbeat  time.Duration
	httpAddr   string
	printState bool

	pins     gpio.Pins
	adc      string
	channels sense.Channels

	serialPath string
	dbPath     string

	tiltDeg  int
	accel    string
	diffused bool
	policy   string

	typeTestIterations int
}

func main() {
	var cfg config
	cfg.pins = gpio.DefaultPins()
	cfg.channels = sense.DefaultChannels()

	flag.DurationVar(&cfg.poll, "poll", 10*time.Millisecond, "Control loop interval")
	flag.StringVar(&cfg.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&cfg.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.BoolVar(&cfg.printState, "print-state", false, "Print rail voltages and persisted settings and exit")

	flag.StringVar(&cfg.pins.Chip, "gpio-chip", cfg.pins.Chip, "GPIO chip name")
	flag.IntVar(&cfg.pins.EnableLamp, "pin-enable", cfg.pins.EnableLamp, "BCM pin for the ballast enable output")
	flag.IntVar(&cfg.pins.Enable24V, "pin-24v", cfg.pins.Enable24V, "BCM pin for the 24V rail enable")
	flag.IntVar(&cfg.pins.StatusLamp, "pin-status", cfg.pins.StatusLamp, "BCM pin for the ballast status input")
	flag.IntVar(&cfg.pins.PWMChip, "pwm-chip", cfg.pins.PWMChip, "sysfs pwmchip index")
	flag.IntVar(&cfg.pins.PWMRail12V, "pwm-12v", cfg.pins.PWMRail12V, "PWM channel soft-starting the 12V rail")
	flag.IntVar(&cfg.pins.PWMDim, "pwm-dim", cfg.pins.PWMDim, "PWM channel driving the dimming input")

	flag.StringVar(&cfg.adc, "adc", "iio:device0", "IIO ADC device sampling the rails")
	flag.IntVar(&cfg.channels.V12, "adc-12v", cfg.channels.V12, "ADC channel of the 12V rail")
	flag.IntVar(&cfg.channels.V24, "adc-24v", cfg.channels.V24, "ADC channel of the 24V rail")

	flag.StringVar(&cfg.serialPath, "radar", "/dev/ttyAMA0", "Radar serial device (empty when not fitted)")
	flag.StringVar(&cfg.dbPath, "db", "/var/lib/uv-lamp/persist.db", "Settings database")

	flag.IntVar(&cfg.tiltDeg, "tilt", 90, "Pointing-down angle in degrees when no accelerometer is fitted")
	flag.StringVar(&cfg.accel, "accel", "", "IIO accelerometer device (empty uses -tilt)")
	flag.BoolVar(&cfg.diffused, "diffused", false, "A diffuser is fitted")
	flag.StringVar(&cfg.policy, "policy", "threshold", `Distance policy ("threshold" or "icnirp")`)
	flag.IntVar(&cfg.typeTestIterations, "type-test-iterations", lamp.DefaultTypeTestIterations, "Bound on each lamp type test phase")

	flag.Parse()

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config) error {
	clock := timeutil.RealClock{}
	bootID := uuid.NewString()

	adc, err := sense.NewIIOSensor(cfg.adc, cfg.channels)
	if err != nil {
		return fmt.Errorf("init adc: %w", err)
	}

	store, err := persist.OpenSQLite(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("init persistence: %w", err)
	}
	defer store.Close()
	record, err := persist.Open(store)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	// Print state mode
	if cfg.printState {
		if err := adc.Update(); err != nil {
			return fmt.Errorf("read adc: %w", err)
		}
		r := adc.Readings()
		rec := record.Record()
		fmt.Printf("12V: %.2fV (ok=%v), 24V: %.2fV, type: %s, power_on: %v, level: %s, radar_on: %v\n",
			r.V12, lamp.PowerOK(r.V12), r.V24, rec.LampType, rec.PowerOn, rec.Level(), rec.RadarOn)
		return nil
	}

	policy, err := safety.PolicyByName(cfg.policy)
	if err != nil {
		return err
	}

	var tiltSensor tilt.Sensor = tilt.Fixed(cfg.tiltDeg)
	if cfg.accel != "" {
		a, err := tilt.NewIIOAccel(cfg.accel)
		if err != nil {
			return fmt.Errorf("init accelerometer: %w", err)
		}
		tiltSensor = a
	}

	// Initialize GPIO; the status line edge handler feeds the pulse counter.
	pulses := lamp.NewPulseCounter()
	hw, err := gpio.NewRealIO(cfg.pins, pulses.Inc)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer hw.Close()

	// Initialize radar
	dec := radar.NewDecoder()
	var port radar.Port
	if cfg.serialPath != "" {
		sp, err := radar.OpenSerial(cfg.serialPath, radar.PortOptions{})
		if err != nil {
			return fmt.Errorf("init radar: %w", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer func() {
			cancel()
			sp.Close()
		}()
		go func() {
			if err := radar.Pump(ctx, sp, dec, clock); err != nil {
				log.Printf("radar: %v", err)
			}
		}()
		port = sp
	}

	safetyCfg := safety.DefaultConfig()
	safetyCfg.Policy = policy
	safetyCfg.Diffused = cfg.diffused
	sys := newSystem(hw, &samplingSensor{adc: adc}, pulses, dec, port, tiltSensor, record, clock, safetyCfg)
	// Covers error returns below; the signal path in runLoop shuts down first.
	defer sys.shutdown()

	sys.boot(cfg.typeTestIterations)

	// Initialize MQTT
	rp, err := mqtt.NewRealPublisher(cfg.broker, "uv-lamp-"+bootID[:8])
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	publisher := mqtt.NewAsync(rp, mqttQueueSize)
	defer publisher.Close()

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:      cfg.poll.Milliseconds(),
		HeartbeatMs: cfg.heartbeat.Milliseconds(),
		Broker:      cfg.broker,
		HTTPPort:    cfg.httpAddr,
		SerialPort:  cfg.serialPath,
		Policy:      policy.Name(),
		Diffused:    cfg.diffused,
		BootID:      bootID,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.Update(sys.statusViews())
	tracker.SetRecord(record.Record())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	}

	// Start HTTP status server
	var commands chan web.Command
	if cfg.httpAddr != "" {
		commands = make(chan web.Command, controlQueueSize)
		srv := web.New(cfg.httpAddr, tracker, collector.Handler(), commands)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.httpAddr)
	}

	log.Printf("started: poll=%v broker=%s heartbeat=%v policy=%s boot=%s", cfg.poll, cfg.broker, cfg.heartbeat, policy.Name(), bootID)

	ticker := time.NewTicker(cfg.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(sys, publisher, publisher, tracker, collector, cfg.heartbeat, time.Now, ticker.C, commands, sigCh)
}

// dropCounter is implemented by publishers that discard events under load.
type dropCounter interface {
	Dropped() uint64
}

func runLoop(sys *system, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, collector *metrics.Collector, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, commands <-chan web.Command, sig <-chan os.Signal) error {
	lastHeartbeat := now()

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			sys.shutdown()

			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				tracker.Update(sys.statusViews())
				event.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case cmd := <-commands:
			sys.apply(cmd)

		case <-tick:
			t := now()
			res := sys.step()

			failed := 0
			for _, tr := range res.transitions {
				if tr.To == lamp.StateFailedOff {
					failed++
				}
				collector.CountTransition(tr)
				if err := publisher.PublishTransition(tr); err != nil {
					log.Printf("publish error: %v", err)
					// Don't crash on publish failure
				}
			}
			if res.commit != nil {
				collector.CountCommit(*res.commit)
				if err := publisher.PublishSafety(*res.commit); err != nil {
					log.Printf("publish error: %v", err)
				}
			}

			if tracker == nil {
				continue
			}
			tracker.Update(sys.statusViews())
			tracker.SetRecord(sys.record.Record())
			if len(res.transitions) > 0 {
				tracker.CountTransitions(len(res.transitions), failed)
			}
			if res.commit != nil {
				tracker.CountSafetyCommit()
			}
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
			if dc, ok := publisher.(dropCounter); ok {
				collector.SetMQTTDropped(dc.Dropped())
			}
			collector.Observe(tracker.Snapshot())

			// Check for heartbeat
			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v state=%s distance=%d transitions=%d",
					snap.Uptime().Truncate(time.Second), snap.Lamp.State, snap.Radar.DistanceCm, snap.Counts.Transitions)
				hbEvent := mqtt.SystemEvent{
					Timestamp:  t,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
