package sockets

import "time"

func WithHandshakeTimeout(d time.Duration) func(*Conn) {
	return func(s *Conn) {
		s.handshakeTimeout = d
	}
}

func WithSubprotocols(protocols ...string) func(*Conn) {
	return func(s *Conn) {
		s.subprotocols = protocols
	}
}

func InsecureSkipVerify() func(*Conn) {
	return func(s *Conn) {
		s.sslSkipVerify = true
	}
}

func OnError(f func(error)) func(*Conn) {
	return func(s *Conn) {
		s.onError = f
	}
}
