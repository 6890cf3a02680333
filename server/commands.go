package server

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/maxpert/notifylist/keyspace"
	"github.com/maxpert/notifylist/notifylist"
)

// errQuit asks the connection loop to close after flushing the reply
var errQuit = errors.New("quit")

type commandFunc func(ctx context.Context, s *Server, w *Writer, args []string) error

// command describes one entry of the command table. Arity counts the command name;
// a negative arity is a minimum, 0 leaves checking to the handler.
type command struct {
	name  string
	arity int
	fn    commandFunc
}

var commandTable = map[string]*command{}

func init() {
	for _, c := range []*command{
		{"ping", -1, cmdPing},
		{"quit", -1, cmdQuit},
		{notifylist.CommandName, 0, cmdNotifylistSet},
		{"set", -3, cmdSet},
		{"get", 2, cmdGet},
		{"del", -2, cmdDel},
		{"expire", 3, cmdExpire},
		{"ttl", 2, cmdTTL},
		{"rpush", -3, cmdRPush},
		{"lpop", 2, cmdLPop},
		{"lrange", 4, cmdLRange},
		{"llen", 2, cmdLLen},
	} {
		commandTable[c.name] = c
	}
}

func lookupCommand(name string) (*command, bool) {
	c, ok := commandTable[strings.ToLower(name)]
	return c, ok
}

func (c *command) checkArity(argc int) bool {
	switch {
	case c.arity == 0:
		return true
	case c.arity > 0:
		return argc == c.arity
	default:
		return argc >= -c.arity
	}
}

func unknownCommandError(args []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ERR unknown command '%s', with args beginning with: ", args[0])
	for _, a := range args[1:] {
		fmt.Fprintf(&b, "'%s' ", a)
	}
	return b.String()
}

func arityError(name string) string {
	return fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name))
}

// replyError maps a command error to its RESP error line
func replyError(err error) string {
	switch {
	case errors.Is(err, keyspace.ErrWrongType):
		return keyspace.ErrWrongType.Error()
	case errors.Is(err, notifylist.ErrWrongArity):
		return "ERR " + notifylist.ErrWrongArity.Error()
	}
	return "ERR " + err.Error()
}

var (
	errNotInteger = errors.New("value is not an integer or out of range")
	errSyntax     = errors.New("syntax error")
)

func invalidExpireError(name string) error {
	return fmt.Errorf("invalid expire time in '%s' command", name)
}

// ttlFromUnits converts n units to a duration. It fails when the product overflows int64.
func ttlFromUnits(n int64, unit time.Duration) (time.Duration, bool) {
	if n > math.MaxInt64/int64(unit) || n < math.MinInt64/int64(unit) {
		return 0, false
	}
	return time.Duration(n) * unit, true
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errNotInteger
	}
	return n, nil
}

func cmdPing(_ context.Context, _ *Server, w *Writer, args []string) error {
	switch len(args) {
	case 1:
		w.WriteSimple("PONG")
	case 2:
		w.WriteBulk([]byte(args[1]))
	default:
		w.WriteError(arityError(args[0]))
	}
	return nil
}

func cmdQuit(_ context.Context, _ *Server, w *Writer, _ []string) error {
	w.WriteSimple("OK")
	return errQuit
}

func cmdNotifylistSet(_ context.Context, s *Server, w *Writer, args []string) error {
	if err := s.module.Execute(args[1:]); err != nil {
		return err
	}
	w.WriteSimple("OK")
	return nil
}

func cmdSet(ctx context.Context, s *Server, w *Writer, args []string) error {
	var ttl time.Duration
	opts := args[3:]
	for i := 0; i < len(opts); i++ {
		var unit time.Duration
		switch strings.ToLower(opts[i]) {
		case "ex":
			unit = time.Second
		case "px":
			unit = time.Millisecond
		default:
			return errSyntax
		}
		if ttl != 0 || i+1 >= len(opts) {
			return errSyntax
		}
		i++
		n, err := parseInt(opts[i])
		if err != nil {
			return err
		}
		var ok bool
		if ttl, ok = ttlFromUnits(n, unit); !ok || n <= 0 {
			return invalidExpireError("set")
		}
	}

	if err := s.store.Set(ctx, args[1], []byte(args[2]), ttl); err != nil {
		if errors.Is(err, keyspace.ErrInvalidExpire) {
			return invalidExpireError("set")
		}
		return err
	}
	w.WriteSimple("OK")
	return nil
}

func cmdGet(ctx context.Context, s *Server, w *Writer, args []string) error {
	v, ok, err := s.store.Get(ctx, args[1])
	if err != nil {
		return err
	}
	if !ok {
		w.WriteNull()
		return nil
	}
	w.WriteBulk(v)
	return nil
}

func cmdDel(ctx context.Context, s *Server, w *Writer, args []string) error {
	n, err := s.store.Del(ctx, args[1:]...)
	if err != nil {
		return err
	}
	w.WriteInt(n)
	return nil
}

func cmdExpire(ctx context.Context, s *Server, w *Writer, args []string) error {
	secs, err := parseInt(args[2])
	if err != nil {
		return err
	}
	ttl, ok := ttlFromUnits(secs, time.Second)
	if !ok {
		return invalidExpireError("expire")
	}
	ok, err = s.store.Expire(ctx, args[1], ttl)
	if errors.Is(err, keyspace.ErrInvalidExpire) {
		return invalidExpireError("expire")
	}
	if err != nil {
		return err
	}
	if ok {
		w.WriteInt(1)
	} else {
		w.WriteInt(0)
	}
	return nil
}

func cmdTTL(ctx context.Context, s *Server, w *Writer, args []string) error {
	ttl, err := s.store.TTL(ctx, args[1])
	if err != nil {
		return err
	}
	if ttl < 0 {
		w.WriteInt(int64(ttl))
		return nil
	}
	w.WriteInt(int64((ttl + 500*time.Millisecond) / time.Second))
	return nil
}

func cmdRPush(ctx context.Context, s *Server, w *Writer, args []string) error {
	values := make([][]byte, len(args)-2)
	for i, v := range args[2:] {
		values[i] = []byte(v)
	}
	n, err := s.store.RPush(ctx, args[1], values...)
	if err != nil {
		return err
	}
	w.WriteInt(n)
	return nil
}

func cmdLPop(ctx context.Context, s *Server, w *Writer, args []string) error {
	v, ok, err := s.store.LPop(ctx, args[1])
	if err != nil {
		return err
	}
	if !ok {
		w.WriteNull()
		return nil
	}
	w.WriteBulk(v)
	return nil
}

func cmdLRange(ctx context.Context, s *Server, w *Writer, args []string) error {
	start, err := parseInt(args[2])
	if err != nil {
		return err
	}
	stop, err := parseInt(args[3])
	if err != nil {
		return err
	}
	items, err := s.store.LRange(ctx, args[1], start, stop)
	if err != nil {
		return err
	}
	w.WriteArray(items)
	return nil
}

func cmdLLen(ctx context.Context, s *Server, w *Writer, args []string) error {
	n, err := s.store.LLen(ctx, args[1])
	if err != nil {
		return err
	}
	w.WriteInt(n)
	return nil
}
