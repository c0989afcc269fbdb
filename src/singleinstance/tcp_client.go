package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"
)

type tcpClient struct{}

func newTcpClient() Client { return &tcpClient{} }

func (c *tcpClient) TryRunOnce(ctx context.Context, outputToStdout bool) (bool, string, error) {
	deadline := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			deadline = d
		}
	}

	port, found := DetectResidentPort(ctx)
	if !found {
		return false, "", nil
	}

	addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, deadline)
	if err != nil {
		// The resident answered PING but dropped off before the request.
		return false, "", err
	}
	w := bufio.NewWriter(conn)
	if outputToStdout {
		_, err = w.WriteString(requestExplainStd)
	} else {
		_, err = w.WriteString(requestExplain)
	}
	if err != nil {
		conn.Close()
		return true, "", err
	}
	if err := w.Flush(); err != nil {
		conn.Close()
		return true, "", err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		conn.Close()
		return true, "", err
	}
	if status == "SUCCESS\n" {
		b, _ := io.ReadAll(br)
		conn.Close()
		return true, string(b), nil
	}
	if status == "ERROR\n" {
		msg, _ := io.ReadAll(br)
		conn.Close()
		return true, "", errors.New(string(msg))
	}
	conn.Close()
	return true, "", errors.New("unexpected response: " + status)
}
