package streamclient

import (
	"bufio"
	"io"
	"strings"
)

// sseEvent es un evento ya despachado del stream.
type sseEvent struct {
	Name string
	Data string
}

// sseReader lee text/event-stream de forma incremental: cada llamada a Next
// devuelve el siguiente evento completo apenas llega la linea en blanco.
type sseReader struct {
	r *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReader(r)}
}

// Next bloquea hasta el proximo evento. Un evento a medio llegar al cerrar el
// stream se descarta y se devuelve io.EOF.
func (s *sseReader) Next() (sseEvent, error) {
	var (
		ev      sseEvent
		data    []string
		hasData bool
	)
	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			// Una ultima linea sin terminador no llega a despacharse.
			return sseEvent{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !hasData {
				ev = sseEvent{}
				continue
			}
			ev.Data = strings.Join(data, "\n")
			if ev.Name == "" {
				ev.Name = "message"
			}
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}
		switch field {
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
			hasData = true
		}
	}
}
