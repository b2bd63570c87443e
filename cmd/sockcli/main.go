package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/skshohagmiah/sockit/pkg/buffer"
	"github.com/skshohagmiah/sockit/pkg/client"
)

const (
	version = "1.0.0"
	banner  = `
sockit %s - socket toolkit KV client
`
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command, args := os.Args[1], os.Args[2:]

	switch command {
	case "version", "-v", "--version":
		fmt.Printf(banner, version)

	case "set":
		need(args, 2, "set <key> <value> [ttl_seconds]")
		runSet(args[0], args[1], args[2:])

	case "get":
		need(args, 1, "get <key>")
		runGet(args[0])

	case "delete", "del":
		need(args, 1, "delete <key>")
		runDelete(args[0])

	case "exists":
		need(args, 1, "exists <key>")
		runExists(args[0])

	case "incr", "decr":
		need(args, 1, command+" <key>")
		runCounter(command, args[0])

	case "mset":
		if len(args) < 2 || len(args)%2 != 0 {
			fail("Usage: sockcli mset <key> <value> [<key> <value> ...]")
		}
		runMSet(args)

	case "mget":
		need(args, 1, "mget <key> [<key> ...]")
		runMGet(args)

	case "probe":
		runProbe(args)

	case "benchmark", "bench":
		runBenchmark()

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(banner, version)
	fmt.Println(`Usage: sockcli <command> [arguments]

Commands:
  set <key> <value> [ttl]   Set a key-value pair (optional TTL in seconds)
  get <key>                 Get value by key
  delete <key>              Delete a key
  exists <key>              Check if key exists
  incr <key>                Increment a counter
  decr <key>                Decrement a counter
  mset <k> <v> [<k> <v>]    Set several pairs at once
  mget <key> [<key> ...]    Get several keys at once
  probe [udp_addr]          Send a UDP probe and wait for the echo
  benchmark                 Run a SET/GET benchmark against the server
  version                   Show version information
  help                      Show this help message

Environment Variables:
  SOCKIT_ADDR               Server address (default: localhost:6380)
  SOCKIT_UDP_ADDR           Probe address (default: localhost:6381)
  SOCKIT_TIMEOUT            Request timeout (default: 5s)
  SOCKIT_BENCHMARK_DURATION Benchmark duration (default: 10s)
  SOCKIT_DEBUG              Log transport events to stderr`)
}

func need(args []string, n int, usage string) {
	if len(args) < n {
		fail("Usage: sockcli " + usage)
	}
}

func fail(msg string) {
	fmt.Println(msg)
	os.Exit(1)
}

func check(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func timeout() time.Duration {
	if d, err := time.ParseDuration(os.Getenv("SOCKIT_TIMEOUT")); err == nil {
		return d
	}
	return 5 * time.Second
}

func logger() *zap.Logger {
	if os.Getenv("SOCKIT_DEBUG") == "" {
		return zap.NewNop()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func connect(ctx context.Context) *client.TCPClient {
	cfg := client.DefaultConfig(env("SOCKIT_ADDR", "localhost:6380"))
	cfg.RequestTimeout = timeout()
	c, err := client.NewTCP(ctx, cfg, logger())
	check(err)
	return c
}

func runSet(key, value string, args []string) {
	ctx := context.Background()
	c := connect(ctx)
	defer c.Close()

	var ttl time.Duration
	if len(args) > 0 {
		seconds, err := strconv.Atoi(args[0])
		if err != nil {
			fail(fmt.Sprintf("Error: invalid TTL value: %v", err))
		}
		ttl = time.Duration(seconds) * time.Second
	}

	check(c.SetWithTTL(ctx, key, []byte(value), ttl))
	if ttl > 0 {
		fmt.Printf("OK '%s' (ttl %v)\n", key, ttl)
	} else {
		fmt.Printf("OK '%s'\n", key)
	}
}

func runGet(key string) {
	ctx := context.Background()
	c := connect(ctx)
	defer c.Close()

	value, err := c.Get(ctx, key)
	if errors.Is(err, client.ErrKeyNotFound) {
		fail("(nil)")
	}
	check(err)
	fmt.Printf("%s\n", value)
}

func runDelete(key string) {
	ctx := context.Background()
	c := connect(ctx)
	defer c.Close()

	check(c.Delete(ctx, key))
	fmt.Printf("Deleted '%s'\n", key)
}

func runExists(key string) {
	ctx := context.Background()
	c := connect(ctx)
	defer c.Close()

	exists, err := c.Exists(ctx, key)
	check(err)
	if exists {
		fmt.Printf("Key '%s' exists\n", key)
	} else {
		fmt.Printf("Key '%s' does not exist\n", key)
	}
}

func runCounter(command, key string) {
	ctx := context.Background()
	c := connect(ctx)
	defer c.Close()

	op := c.Incr
	if command == "decr" {
		op = c.Decr
	}
	n, err := op(ctx, key)
	check(err)
	fmt.Println(n)
}

func runMSet(args []string) {
	ctx := context.Background()
	c := connect(ctx)
	defer c.Close()

	keys := make([]string, 0, len(args)/2)
	values := make([][]byte, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		keys = append(keys, args[i])
		values = append(values, []byte(args[i+1]))
	}
	check(c.MSet(ctx, keys, values))
	fmt.Printf("OK %d keys\n", len(keys))
}

func runMGet(keys []string) {
	ctx := context.Background()
	c := connect(ctx)
	defer c.Close()

	values, err := c.MGet(ctx, keys)
	check(err)
	for i, key := range keys {
		if values[i] == nil {
			fmt.Printf("%s: (nil)\n", key)
			continue
		}
		fmt.Printf("%s: %s\n", key, values[i])
	}
}

// runProbe sends a tagged datagram to the UDP echo endpoint and reports the
// round-trip time.
func runProbe(args []string) {
	addr := env("SOCKIT_UDP_ADDR", "localhost:6381")
	if len(args) > 0 {
		addr = args[0]
	}

	conn, err := net.Dial("udp", addr)
	check(err)
	defer conn.Close()

	tag := uuid.NewString()
	probe, err := buffer.New(buffer.AlignedPosition(buffer.StringSize(tag), 8)+buffer.SizeInt64, 8)
	check(err)
	check(probe.WriteString(tag))
	check(probe.WriteInt64(time.Now().UnixNano()))

	start := time.Now()
	_, err = conn.Write(probe.Bytes())
	check(err)
	check(conn.SetReadDeadline(start.Add(timeout())))

	reply := make([]byte, 512)
	n, err := conn.Read(reply)
	check(err)
	rtt := time.Since(start)

	echo, err := buffer.Wrap(reply[:n], 8)
	check(err)
	got, ok := echo.TryReadString()
	if !ok || got != tag {
		fail("Error: probe reply does not match")
	}
	fmt.Printf("Reply from %s: %d bytes in %v\n", conn.RemoteAddr(), n, rtt)
}

func runBenchmark() {
	fmt.Printf(banner, version)
	fmt.Println("Running benchmark...")
	fmt.Println()

	ctx := context.Background()
	c := connect(ctx)
	defer c.Close()

	duration := 10 * time.Second
	if d, err := time.ParseDuration(os.Getenv("SOCKIT_BENCHMARK_DURATION")); err == nil {
		duration = d
	}

	value := make([]byte, 1024)
	for i := range value {
		value[i] = byte(i % 256)
	}

	fmt.Printf("SET (%v)...\n", duration)
	setOps := benchmarkOperation(duration, func(i int) error {
		return c.Set(ctx, fmt.Sprintf("bench_key_%d", i), value)
	})
	fmt.Printf("   Throughput: %.2fK ops/sec\n\n", float64(setOps)/duration.Seconds()/1000)

	fmt.Printf("GET (%v)...\n", duration)
	getOps := benchmarkOperation(duration, func(i int) error {
		_, err := c.Get(ctx, fmt.Sprintf("bench_key_%d", i%max(setOps, 1)))
		return err
	})
	fmt.Printf("   Throughput: %.2fK ops/sec\n\n", float64(getOps)/duration.Seconds()/1000)

	fmt.Println("Benchmark completed")
}

func benchmarkOperation(duration time.Duration, op func(int) error) int {
	stop := time.Now().Add(duration)
	ops := 0
	for time.Now().Before(stop) {
		if err := op(ops); err != nil {
			continue
		}
		ops++
	}
	return ops
}
