package mail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// recordingSender запоминает вызовы и может блокироваться или падать
type recordingSender struct {
	err     error
	started chan struct{}
	release chan struct{}
	calls   []string
	ctxErrs []error
	mu      sync.Mutex
}

func (s *recordingSender) SendResetEmail(ctx context.Context, to, link string) error {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, to+" "+link)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	return s.err
}

func (s *recordingSender) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	sender := NewLogSender(slog.New(slog.NewTextHandler(&buf, nil)))

	err := sender.SendResetEmail(context.Background(), "a@x.io", "http://localhost:8000/reset-password?token=abc")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "to=a@x.io")
	assert.Contains(t, out, "token=abc")
}

func TestDispatcher_DeliversAndDrains(t *testing.T) {
	sender := &recordingSender{}
	var (
		mu      sync.Mutex
		results []error
	)
	d := NewDispatcher(sender, 8, discardLogger(), WithResultHook(func(err error) {
		mu.Lock()
		results = append(results, err)
		mu.Unlock()
	}))

	for i := 0; i < 3; i++ {
		require.NoError(t, d.SendResetEmail(context.Background(), fmt.Sprintf("u%d@x.io", i), "link"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	// Close дожидается отправки всех писем из очереди
	assert.Equal(t, []string{"u0@x.io link", "u1@x.io link", "u2@x.io link"}, sender.Calls())
	mu.Lock()
	assert.Equal(t, []error{nil, nil, nil}, results)
	mu.Unlock()
}

func TestDispatcher_FailureIsOnlyReported(t *testing.T) {
	var logBuf bytes.Buffer
	sender := &recordingSender{err: errors.New("smtp down")}
	hookErrs := make(chan error, 1)

	d := NewDispatcher(sender, 1, slog.New(slog.NewTextHandler(&logBuf, nil)),
		WithResultHook(func(err error) { hookErrs <- err }))

	err := d.SendResetEmail(context.Background(), "a@x.io", "link")
	assert.NoError(t, err, "ошибка доставки не должна доходить до вызывающего")

	select {
	case got := <-hookErrs:
		assert.EqualError(t, got, "smtp down")
	case <-time.After(5 * time.Second):
		t.Fatal("result hook was not called")
	}

	require.NoError(t, d.Close(context.Background()))
	assert.Contains(t, logBuf.String(), "failed to send reset email")
}

func TestDispatcher_DetachesRequestContext(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, 1, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, d.SendResetEmail(ctx, "a@x.io", "link"))
	require.NoError(t, d.Close(context.Background()))

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.ctxErrs, 1)
	assert.NoError(t, sender.ctxErrs[0])
}

func TestDispatcher_QueueFull(t *testing.T) {
	sender := &recordingSender{
		started: make(chan struct{}, 3),
		release: make(chan struct{}),
	}
	var (
		mu       sync.Mutex
		failures int
	)
	d := NewDispatcher(sender, 1, discardLogger(), WithResultHook(func(err error) {
		if err != nil {
			mu.Lock()
			failures++
			mu.Unlock()
		}
	}))

	// Первое письмо забирает воркер и блокируется
	require.NoError(t, d.SendResetEmail(context.Background(), "1@x.io", "link"))
	<-sender.started

	// Второе занимает единственное место в очереди, третье отбрасывается
	require.NoError(t, d.SendResetEmail(context.Background(), "2@x.io", "link"))
	require.NoError(t, d.SendResetEmail(context.Background(), "3@x.io", "link"))

	mu.Lock()
	assert.Equal(t, 1, failures)
	mu.Unlock()

	close(sender.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, sender.Calls(), 2)
}

func TestDispatcher_Closed(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, 1, discardLogger())
	require.NoError(t, d.Close(context.Background()))

	err := d.SendResetEmail(context.Background(), "a@x.io", "link")
	assert.ErrorIs(t, err, ErrDispatcherClosed)

	// Повторный Close безопасен
	assert.NoError(t, d.Close(context.Background()))
}

func TestDispatcher_CloseTimeout(t *testing.T) {
	sender := &recordingSender{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	d := NewDispatcher(sender, 1, discardLogger())

	require.NoError(t, d.SendResetEmail(context.Background(), "a@x.io", "link"))
	<-sender.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)

	// Отпускаем воркер, чтобы он завершился до проверки goleak
	close(sender.release)
	require.NoError(t, d.Close(context.Background()))
}

func TestBuildResetMessage(t *testing.T) {
	link := "http://localhost:8000/reset-password?token=aaa.bbb.ccc"

	msg, err := buildResetMessage("noreply@prescient.com", "a@x.io", link, time.Hour)
	require.NoError(t, err)

	text := string(msg)
	assert.Contains(t, text, "From: noreply@prescient.com\r\n")
	assert.Contains(t, text, "To: a@x.io\r\n")
	assert.Contains(t, text, "Subject: "+ResetSubject+"\r\n")
	assert.Contains(t, text, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.Contains(t, text, link)
	assert.Contains(t, text, "1 jam")

	_, err = buildResetMessage("noreply@prescient.com", "a@x.io\r\nBcc: evil@x.io", link, time.Hour)
	assert.ErrorIs(t, err, errHeaderInjection)
}

func TestSMTPSender(t *testing.T) {
	t.Run("delivers message", func(t *testing.T) {
		srv := startFakeSMTP(t, false)
		sender := NewSMTPSender(SMTPConfig{
			Host:     "127.0.0.1",
			Port:     srv.port,
			From:     "noreply@prescient.com",
			Insecure: true,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := sender.SendResetEmail(ctx, "a@x.io", "http://localhost:8000/reset-password?token=t0k")
		require.NoError(t, err)

		srv.wait()
		assert.Contains(t, srv.from, "noreply@prescient.com")
		assert.Contains(t, srv.rcpt, "a@x.io")
		assert.Contains(t, srv.data, "token=t0k")
	})

	t.Run("recipient rejected", func(t *testing.T) {
		srv := startFakeSMTP(t, true)
		sender := NewSMTPSender(SMTPConfig{
			Host:     "127.0.0.1",
			Port:     srv.port,
			From:     "noreply@prescient.com",
			Insecure: true,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := sender.SendResetEmail(ctx, "a@x.io", "link")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RCPT")
		srv.wait()
	})

	t.Run("refuses plaintext without STARTTLS", func(t *testing.T) {
		srv := startFakeSMTP(t, false)
		sender := NewSMTPSender(SMTPConfig{
			Host: "127.0.0.1",
			Port: srv.port,
			From: "noreply@prescient.com",
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := sender.SendResetEmail(ctx, "a@x.io", "http://localhost:8000/reset-password?token=t0k")
		require.ErrorIs(t, err, ErrStartTLSUnavailable)

		srv.wait()
		assert.Empty(t, srv.from)
		assert.Empty(t, srv.data, "reset link must not leave in cleartext")
	})

	t.Run("server unreachable", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		require.NoError(t, ln.Close())

		sender := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, From: "noreply@prescient.com"})
		err = sender.SendResetEmail(context.Background(), "a@x.io", "link")
		assert.Error(t, err)
	})
}

// fakeSMTP минимальный SMTP сервер на одно соединение
type fakeSMTP struct {
	ln       net.Listener
	from     string
	rcpt     string
	data     string
	wg       sync.WaitGroup
	port     int
	failRcpt bool
}

func startFakeSMTP(t *testing.T, failRcpt bool) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &fakeSMTP{ln: ln, port: ln.Addr().(*net.TCPAddr).Port, failRcpt: failRcpt}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.handle(conn)
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		s.wg.Wait()
	})

	return s
}

// wait дожидается окончания сессии; после него поля можно читать без гонок
func (s *fakeSMTP) wait() {
	s.wg.Wait()
}

func (s *fakeSMTP) handle(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	r := bufio.NewReader(conn)
	write := func(line string) {
		_, _ = fmt.Fprintf(conn, "%s\r\n", line)
	}

	write("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))

		switch {
		case strings.HasPrefix(cmd, "EHLO"):
			write("250-localhost")
			write("250 8BITMIME")
		case strings.HasPrefix(cmd, "HELO"):
			write("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			s.from = line
			write("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.rcpt = line
			if s.failRcpt {
				write("550 no such user")
				continue
			}
			write("250 OK")
		case cmd == "DATA":
			write("354 end with .")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			s.data = data.String()
			write("250 OK")
		case cmd == "RSET" || cmd == "NOOP":
			write("250 OK")
		case cmd == "QUIT":
			write("221 bye")
			return
		default:
			write("502 not implemented")
		}
	}
}
