// Package sh is the operator console talking to the firmware over its
// link.
package sh

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/abiosoft/ishell"
	"github.com/golang/glog"

	"github.com/robotalks/compass.go/pkg/l0/comm"
	"github.com/robotalks/compass.go/pkg/link"
	"github.com/robotalks/compass.go/pkg/telemetry/mqtt"
)

// ReplyTimeout is how long rate waits for an ERR reply.
const ReplyTimeout = 300 * time.Millisecond

var errNotConnected = errors.New("not connected")

// Config defines the console options.
type Config struct {
	Link string
	Baud int
	// MQTTBrokerURL additionally watches telemetry mirrored to MQTT.
	MQTTBrokerURL string
}

var (
	defaultConfig = Config{
		Link: "tcp://localhost:7055",
		Baud: 9600,
	}

	// flags
	evalOnly bool

	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&RateCmd,
		&SendCmd,
		&WatchCmd,
		&LastCmd,
		&PortsCmd,
	}
)

func init() {
	if val := os.Getenv("COMPASS_LINK"); val != "" {
		defaultConfig.Link = val
	}
	if val := os.Getenv("COMPASS_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.StringVar(&defaultConfig.Link, "link", defaultConfig.Link, "Serial device, tcp://host:port or listen://host:port.")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "Serial baud rate.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL to watch, empty to disable.")
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool

	Shell  *ishell.Shell
	Config *Config

	lock    sync.Mutex
	conn    io.ReadWriteCloser
	name    string
	queue   *mqtt.Queue
	watch   bool
	last    map[string]comm.Frame
	replies chan comm.Frame
}

const shellKey = "$shell"

// New creates a new shell.
func New(conf *Config) *Shell {
	s := newShell(conf)
	s.Interactive = !evalOnly
	s.Shell = ishell.New()
	s.Shell.Set(shellKey, s)
	s.setPrompt()
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if !ShellFrom(c).Connected() {
			c.Err(errNotConnected)
			return
		}
		fn(c)
	}
}

func newShell(conf *Config) *Shell {
	return &Shell{
		Config:  conf,
		last:    make(map[string]comm.Frame),
		replies: make(chan comm.Frame, 4),
	}
}

func (s *Shell) setPrompt() {
	if s.Shell == nil {
		return
	}
	s.lock.Lock()
	name := s.name
	s.lock.Unlock()
	if name == "" {
		name = "none"
	}
	s.Shell.SetPrompt(fmt.Sprintf("[%s] > ", name))
}

// Connected tells whether a link is open.
func (s *Shell) Connected() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.conn != nil
}

// Connect opens the link and starts reading frames from it.
func (s *Shell) Connect(spec string) error {
	conn, err := link.Open(spec, s.Config.Baud)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.lock.Lock()
	s.conn, s.name = conn, spec
	s.lock.Unlock()
	s.setPrompt()
	go s.readLink(conn)
	return nil
}

// Disconnect closes the current link.
func (s *Shell) Disconnect() {
	s.lock.Lock()
	conn := s.conn
	s.conn, s.name = nil, ""
	s.lock.Unlock()
	if conn != nil {
		conn.Close()
		s.setPrompt()
	}
}

// WatchMQTT subscribes to telemetry mirrored on the broker.
func (s *Shell) WatchMQTT(brokerURL string) error {
	q, err := mqtt.NewQueueFromURL(brokerURL)
	if err != nil {
		return err
	}
	if err := mqtt.WaitConnected(q.Connect(), mqtt.ConnectTimeout); err != nil {
		return err
	}
	q.Sub("+/+", func(topic string, payload []byte) {
		if f, ok := comm.ParseFrame(string(payload)); ok {
			s.receive(f, topic)
		}
	})
	s.queue = q
	return nil
}

// Send writes raw bytes to the link.
func (s *Shell) Send(raw []byte) error {
	s.lock.Lock()
	conn := s.conn
	s.lock.Unlock()
	if conn == nil {
		return errNotConnected
	}
	_, err := conn.Write(raw)
	return err
}

// SetRate sends a RATE command and waits ReplyTimeout for a rejection.
func (s *Shell) SetRate(ctx context.Context, rate int) error {
	for len(s.replies) > 0 {
		<-s.replies
	}
	if err := s.Send(comm.AppendIntFrame(nil, "RATE", int64(rate))); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, ReplyTimeout)
	defer cancel()
	select {
	case f := <-s.replies:
		return fmt.Errorf("rate %d rejected: %s", rate, f)
	case <-ctx.Done():
		return nil
	}
}

// Last returns the latest frame of each type.
func (s *Shell) Last() []comm.Frame {
	s.lock.Lock()
	defer s.lock.Unlock()
	frames := make([]comm.Frame, 0, len(s.last))
	for _, f := range s.last {
		frames = append(frames, f)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i].Type < frames[j].Type })
	return frames
}

// SetWatch toggles printing of incoming frames.
func (s *Shell) SetWatch(on bool) {
	s.lock.Lock()
	s.watch = on
	s.lock.Unlock()
}

func (s *Shell) readLink(conn io.Reader) {
	var parser comm.Parser
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		for _, b := range buf[:n] {
			if parser.Parse(b) == comm.NewMessage {
				s.receive(parser.Frame(), "link")
			}
		}
		if err != nil {
			glog.V(1).Infof("link read: %v", err)
			return
		}
	}
}

func (s *Shell) receive(f comm.Frame, source string) {
	s.lock.Lock()
	s.last[f.Type] = f
	watch := s.watch
	s.lock.Unlock()
	if f.Type == "ERR" {
		select {
		case s.replies <- f:
		default:
		}
	}
	if watch && s.Shell != nil {
		s.Shell.Printf("%s %s\n", source, f)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.Config.Link != "" {
		if err := s.Connect(s.Config.Link); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.Link, err)
		}
	}
	if s.Config.MQTTBrokerURL != "" {
		if err := s.WatchMQTT(s.Config.MQTTBrokerURL); err != nil {
			log.Fatalf("MQTT %q failed: %v", s.Config.MQTTBrokerURL, err)
		}
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// Close releases the link and the MQTT connection.
func (s *Shell) Close() error {
	s.Disconnect()
	if s.queue != nil {
		s.queue.Close()
	}
	return nil
}

func parseOnOff(args []string, current bool) (bool, error) {
	if len(args) == 0 {
		return !current, nil
	}
	switch args[0] {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("expect on or off, got %q", args[0])
}

var (
	// ConnectCmd opens a link.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[LINK]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			spec := s.Config.Link
			if len(c.Args) > 0 {
				spec = c.Args[0]
			}
			if err := s.Connect(spec); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd closes the current link.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// RateCmd sets the MAG telemetry rate.
	RateCmd = ishell.Cmd{
		Name: "rate",
		Help: "HZ (0, 1, 2, 4, 5 or 10)",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("rate expects one argument"))
				return
			}
			rate, err := strconv.Atoi(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			if err := ShellFrom(c).SetRate(context.Background(), rate); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// SendCmd sends raw text.
	SendCmd = ishell.Cmd{
		Name: "send",
		Help: "RAW, e.g. send $RATE,2*",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("nothing to send"))
				return
			}
			if err := ShellFrom(c).Send([]byte(strings.Join(c.Args, " "))); err != nil {
				c.Err(err)
			}
		}),
	}

	// WatchCmd toggles printing of incoming frames.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "[on|off]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			s.lock.Lock()
			current := s.watch
			s.lock.Unlock()
			on, err := parseOnOff(c.Args, current)
			if err != nil {
				c.Err(err)
				return
			}
			s.SetWatch(on)
		},
	}

	// LastCmd prints the latest frame of each type.
	LastCmd = ishell.Cmd{
		Name: "last",
		Help: "",
		Func: func(c *ishell.Context) {
			frames := ShellFrom(c).Last()
			if len(frames) == 0 {
				c.Println("No frames received")
				return
			}
			for _, f := range frames {
				c.Println(f.String())
			}
		},
	}

	// PortsCmd lists serial ports.
	PortsCmd = ishell.Cmd{
		Name: "ports",
		Help: "",
		Func: func(c *ishell.Context) {
			ports, err := link.Ports()
			if err != nil {
				c.Err(err)
				return
			}
			for _, p := range ports {
				c.Println(p)
			}
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig()).Run(flag.Args()...)
}
