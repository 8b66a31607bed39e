package smtp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emersion/go-mailauth"
)

const (
	// RFC 5321 section 4.5.3.1.5 allows 512 octets, some servers send more
	maxLineLength = 4096
	maxReplyLines = 512
)

func protocolErrorf(format string, v ...interface{}) error {
	return &mailauth.ProtocolError{Text: "smtp: " + fmt.Sprintf(format, v...)}
}

func readLine(br *bufio.Reader) (string, error) {
	var line []byte
	for {
		b, err := br.ReadSlice('\n')
		line = append(line, b...)
		if len(line) > maxLineLength {
			return "", protocolErrorf("reply line too long")
		}
		if err == bufio.ErrBufferFull {
			continue
		} else if err == io.EOF && len(line) > 0 {
			return "", io.ErrUnexpectedEOF
		} else if err != nil {
			return "", err
		}
		break
	}
	s := strings.TrimSuffix(string(line), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

// ReadReply reads a single or multi-line reply.
//
// The RFC 3463 enhanced status code, if any, is stripped from the lines and
// stored in Reply.EnhancedCode.
//
// A malformed reply yields a *mailauth.ProtocolError. I/O errors are returned
// as is.
func ReadReply(br *bufio.Reader) (*mailauth.Reply, error) {
	var reply mailauth.Reply
	for {
		line, err := readLine(br)
		if errors.Is(err, io.EOF) && len(reply.Lines) > 0 {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, err
		}

		if len(line) < 3 || (len(line) > 3 && line[3] != ' ' && line[3] != '-') {
			return nil, protocolErrorf("malformed reply line %q", line)
		}
		code, err := strconv.Atoi(line[:3])
		if err != nil || line[0] < '1' || line[0] > '5' {
			return nil, protocolErrorf("malformed reply code %q", line[:3])
		}
		if len(reply.Lines) == 0 {
			reply.Status = mailauth.StatusCode(code)
		} else if mailauth.StatusCode(code) != reply.Status {
			return nil, protocolErrorf("inconsistent reply codes %v and %v", int(reply.Status), code)
		}

		var text string
		if len(line) > 4 {
			text = line[4:]
		}
		reply.Lines = append(reply.Lines, text)
		if len(reply.Lines) > maxReplyLines {
			return nil, protocolErrorf("too many reply lines")
		}

		if len(line) == 3 || line[3] == ' ' {
			break
		}
	}

	stripEnhancedCode(&reply)
	return &reply, nil
}

func stripEnhancedCode(reply *mailauth.Reply) {
	class := int(reply.Status) / 100
	if class != 2 && class != 4 && class != 5 {
		return
	}
	code, _, _ := strings.Cut(reply.Lines[0], " ")
	if !isEnhancedCode(code, class) {
		return
	}
	reply.EnhancedCode = code
	for i, line := range reply.Lines {
		if line == code {
			reply.Lines[i] = ""
		} else if rest, ok := strings.CutPrefix(line, code+" "); ok {
			reply.Lines[i] = rest
		}
	}
}

// isEnhancedCode checks the "class.subject.detail" syntax of RFC 3463.
func isEnhancedCode(s string, class int) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[0] != strconv.Itoa(class) {
		return false
	}
	for _, part := range parts[1:] {
		if len(part) == 0 || len(part) > 3 {
			return false
		}
		if _, err := strconv.ParseUint(part, 10, 16); err != nil {
			return false
		}
	}
	return true
}
