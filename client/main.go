package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/arcade/network"
)

const usage = `commands:
  create <tictactoe|memory|mathwars> [name]
  join <pin> [name]
  mark <index> | flip <index> | answer <n>
  reset | leave | chat <text...>`

// client remembers the room it is in so commands don't need a PIN.
type client struct {
	conn *websocket.Conn
	pin  string
}

// send formats and sends a message to the WebSocket server.
func (c *client) send(msgID uint16, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	packet, err := network.EncodePacket(msgID, data)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, packet)
}

func (c *client) command(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	index := func() *int {
		n, err := strconv.Atoi(arg(1))
		if err != nil {
			return nil
		}
		return &n
	}

	switch fields[0] {
	case "create":
		return c.send(network.MsgTypeCreateRoom, network.CreateRoomRequest{GameType: arg(1), Username: arg(2)})
	case "join":
		return c.send(network.MsgTypeJoinRoom, network.JoinRoomRequest{PIN: arg(1), Username: arg(2)})
	case "mark":
		return c.send(network.MsgTypeMarkCell, network.MoveRequest{PIN: c.pin, Index: index()})
	case "flip":
		return c.send(network.MsgTypeFlipCard, network.MoveRequest{PIN: c.pin, Index: index()})
	case "answer":
		return c.send(network.MsgTypeSubmitAnswer, network.MoveRequest{PIN: c.pin, Answer: network.Answer(arg(1))})
	case "reset":
		return c.send(network.MsgTypeResetGame, network.PinRequest{PIN: c.pin})
	case "leave":
		err := c.send(network.MsgTypeLeaveRoom, network.PinRequest{PIN: c.pin})
		c.pin = ""
		return err
	case "chat":
		return c.send(network.MsgTypeChat, network.ChatRequest{PIN: c.pin, Message: strings.Join(fields[1:], " ")})
	default:
		log.Println(usage)
		return nil
	}
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	flag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	c := &client{conn: conn}

	done := make(chan struct{})
	pins := make(chan string, 1)

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.DecodePacket(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			log.Printf("<- RECV (ID: %d): %s", packet.MsgID, packet.Data)
			if packet.MsgID == network.MsgTypeRoomCreated || packet.MsgID == network.MsgTypeGameStart {
				var room struct {
					PIN string `json:"pin"`
				}
				if json.Unmarshal(packet.Data, &room) == nil && room.PIN != "" {
					select {
					case pins <- room.PIN:
					default:
					}
				}
			}
		}
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	log.Println(usage)
	for {
		select {
		case <-done:
			return
		case pin := <-pins:
			c.pin = pin
		case line := <-lines:
			if err := c.command(line); err != nil {
				log.Println("Write error:", err)
				return
			}
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		}
	}
}
