package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"os"

	"github.com/golang/glog"

	"github.com/robotalks/compass.go/pkg/env"
	"github.com/robotalks/compass.go/pkg/firmware"
	"github.com/robotalks/compass.go/pkg/framework"
	"github.com/robotalks/compass.go/pkg/l0/comm"
	"github.com/robotalks/compass.go/pkg/link"
	"github.com/robotalks/compass.go/pkg/telemetry/mqtt"
	"github.com/robotalks/compass.go/pkg/telemetry/websocket"
)

func init() {
	firmware.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()
	if err := firmware.ApplyFile(); err != nil {
		glog.Fatalf("config: %v", err)
	}
	conf := firmware.Default()
	if err := conf.Validate(); err != nil {
		glog.Fatalln(err)
	}

	hw, err := conf.OpenHardware()
	if err != nil {
		glog.Fatalf("open hardware: %v", err)
	}
	defer hw.Close()
	ctl, err := conf.NewController(hw)
	if err != nil {
		glog.Fatalln(err)
	}

	runner := framework.NewRunner().HandleSignals()
	if err := ctl.Start(runner.Context); err != nil {
		glog.Fatalln(err)
	}

	conn, err := link.Open(conf.Link, conf.Baud)
	if err != nil {
		glog.Fatalf("open link: %v", err)
	}
	bridge := comm.NewBridge(conn, ctl.Input(), ctl.Output())
	ctl.Kick = bridge.Kick

	if conf.MQTTBrokerURL != "" {
		pub, err := mqtt.NewPublisherFromURL(conf.MQTTBrokerURL, env.DeviceID())
		if err != nil {
			glog.Fatalln(err)
		}
		ctl.Sinks = append(ctl.Sinks, pub)
		runner.Go(framework.NamedRun("mqtt", pub))
	}
	if conf.WebSocketAddr != "" {
		hub := websocket.NewHub()
		ctl.Sinks = append(ctl.Sinks, hub)
		runner.Go(framework.NamedRun("websocket", &websocket.Server{Addr: conf.WebSocketAddr, Hub: hub}))
	}

	loop := framework.NewLoop(hw.Timer).Add(ctl)
	loop.Period = conf.Period
	runner.Go(
		framework.NamedRun("loop", loop),
		framework.NamedRun("bridge", framework.RunFunc(func(ctx context.Context) error {
			return framework.RunWithContextCloser(ctx, conn, func() error {
				return bridge.Run(ctx)
			})
		})),
	)
	err = runner.Wait()
	glog.Infof("stopped after %d ticks, link %+v, %d frame(s) dropped",
		loop.Ticks(), bridge.Stats(), ctl.Dropped())
	if err != nil {
		glog.Errorln(err)
		glog.Flush()
		os.Exit(1)
	}
}
