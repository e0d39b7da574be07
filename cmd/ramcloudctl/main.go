// Command ramcloudctl is a REPL that drives the retryable RPC stack —
// Config Cache, IndexWrapper, ServerIdWrapper — against a single
// in-process mock master, in the spirit of the teacher's own bare-bones
// cmd/main.go readline shell. The "master" is just this process's own
// IndexletManager reached through the mock transport: no real master
// service exists in this module (spec.md §1), so the shell plays that
// role by decoding wire requests straight into IndexletManager calls.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/ergochat/readline"

	"github.com/ramcloud/ramcloud"
	"github.com/ramcloud/ramcloud/coordinator"
	"github.com/ramcloud/ramcloud/directory"
	"github.com/ramcloud/ramcloud/internal/logging"
	"github.com/ramcloud/ramcloud/rpc"
	"github.com/ramcloud/ramcloud/serverlist"
	"github.com/ramcloud/ramcloud/status"
	"github.com/ramcloud/ramcloud/transport/mock"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("take-ownership"),
	readline.PcItem("drop-ownership"),
	readline.PcItem("insert"),
	readline.PcItem("remove"),
	readline.PcItem("lookup"),
	readline.PcItem("kill"),
	readline.PcItem("revive"),
	readline.PcItem("help"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

const masterServerId uint64 = 1

// shell wires one master's IndexletManager behind the mock network under
// the locator "mock:master", plus every client-side collaborator an
// rpc.Wrapper needs to reach it. Those collaborators come from a single
// *ramcloud.Context (component C11, spec.md §4.12), the same handle a real
// client or test harness would build and pass to every constructor instead
// of wiring each dependency by hand.
type shell struct {
	ctx     *ramcloud.Context
	manager *ramcloud.IndexletManager
	net     *mock.Network
	fetcher *coordinator.MockConfigFetcher
	cache   *directory.Cache
	servers *serverlist.Static

	tableId uint64
	indexId uint8
	storage uint64
}

func newShell() *shell {
	log := logging.NewDefaultLogger(slog.LevelInfo)
	net := mock.NewNetwork()
	fetcher := coordinator.NewMockConfigFetcher()
	servers := serverlist.NewStatic(masterServerId)
	cctx := ramcloud.NewContext(net, net, servers, fetcher, log)

	s := &shell{
		ctx:     cctx,
		manager: ramcloud.NewIndexletManager(cctx.Log),
		net:     net,
		fetcher: fetcher,
		cache:   directory.New(cctx.Coordinator, cctx.Transport, cctx.Log),
		servers: servers,
		tableId: 1,
		indexId: 0,
		storage: 10,
	}
	net.RegisterServer("master", s.handle)
	return s
}

func (s *shell) locate(serverId uint64) (string, bool) {
	if serverId != masterServerId {
		return "", false
	}
	return mock.Locator("master"), true
}

// handle plays the master's RPC dispatch table: decode the opcode and
// apply it to the shared IndexletManager.
func (s *shell) handle(ctx context.Context, opcode uint16, service uint8, req []byte) ([]byte, error) {
	switch opcode {
	case rpc.OpTakeIndexletOwnership:
		tableId, indexId, storageTableId, firstKey, firstNotOwned := decodeOwnershipRequest(req, true)
		if !s.manager.AddIndexlet(tableId, indexId, storageTableId, firstKey, firstNotOwned) {
			return []byte{byte(status.UnknownIndexlet)}, nil
		}
		s.fetcher.SetIndexlets(tableId, []coordinator.IndexletRecord{
			{TableId: tableId, IndexId: indexId, FirstKey: firstKey, FirstNotOwned: firstNotOwned, ServiceLocator: mock.Locator("master")},
		})
		return []byte{byte(status.OK)}, nil
	case rpc.OpDropIndexletOwnership:
		tableId, indexId, _, firstKey, firstNotOwned := decodeOwnershipRequest(req, false)
		if !s.manager.DeleteIndexlet(tableId, indexId, firstKey, firstNotOwned) {
			return []byte{byte(status.UnknownIndexlet)}, nil
		}
		s.fetcher.SetIndexlets(tableId, nil)
		return []byte{byte(status.OK)}, nil
	case rpc.OpInsertIndexEntry:
		tableId, indexId, key, hash := decodeEntryRequest(req)
		return []byte{byte(s.manager.InsertEntry(tableId, indexId, key, hash))}, nil
	case rpc.OpRemoveIndexEntry:
		tableId, indexId, key, hash := decodeEntryRequest(req)
		return []byte{byte(s.manager.RemoveEntry(tableId, indexId, key, hash))}, nil
	case rpc.OpLookupIndexKeys:
		return s.handleLookup(req), nil
	default:
		return []byte{byte(status.ServerNotUp)}, nil
	}
}

func decodeOwnershipRequest(req []byte, hasStorageTableId bool) (tableId uint64, indexId uint8, storageTableId uint64, firstKey, firstNotOwned ramcloud.Key) {
	off := 1
	tableId = beUint64(req[off:])
	off += 8
	indexId = req[off]
	off++
	if hasStorageTableId {
		storageTableId = beUint64(req[off:])
		off += 8
	}
	firstKey, off = readKeyAt(req, off)
	firstNotOwned, _ = readKeyAt(req, off)
	return
}

func decodeEntryRequest(req []byte) (tableId uint64, indexId uint8, key ramcloud.Key, hash uint64) {
	off := 1
	tableId = beUint64(req[off:])
	off += 8
	indexId = req[off]
	off++
	key, off = readKeyAt(req, off)
	hash = beUint64(req[off:])
	return
}

func (s *shell) handleLookup(req []byte) []byte {
	off := 1
	tableId := beUint64(req[off:])
	off += 8
	indexId := req[off]
	off++
	var firstKey, lastKey ramcloud.Key
	firstKey, off = readKeyAt(req, off)
	firstHash := beUint64(req[off:])
	off += 8
	lastKey, off = readKeyAt(req, off)
	maxHashes := int(beUint32(req[off:]))

	result, st := s.manager.LookupIndexKeys(tableId, indexId, firstKey, firstHash, lastKey, maxHashes)
	return rpc.EncodeLookupIndexKeysResponse(rpc.LookupIndexKeysResponse{
		Status:    st,
		Hashes:    result.Hashes,
		Truncated: len(result.NextKey) > 0,
		NextKey:   result.NextKey,
		NextHash:  result.NextKeyHash,
	})
}

func readKeyAt(buf []byte, offset int) (ramcloud.Key, int) {
	n := int(beUint16(buf[offset:]))
	offset += 2
	return ramcloud.Key(buf[offset : offset+n]), offset + n
}

func beUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func beUint32(b []byte) uint32 {
	var v uint32
	for i := 0; i < 4; i++ {
		v = v<<8 | uint32(b[i])
	}
	return v
}

func beUint16(b []byte) uint16 {
	return uint16(b[0])<<8 | uint16(b[1])
}

func main() {
	l, err := readline.NewEx(&readline.Config{
		Prompt:            "ramcloud> ",
		HistoryFile:       "/tmp/ramcloudctl_history.tmp",
		AutoComplete:      completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	s := newShell()
	fmt.Println("ramcloudctl: mock single-master indexlet shell. Type 'help' for commands.")

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		cmd := args[0]

		switch cmd {
		case "help":
			printHelp()
		case "exit", "quit":
			return
		case "take-ownership":
			s.cmdTakeOwnership(args[1:])
		case "drop-ownership":
			s.cmdDropOwnership(args[1:])
		case "insert":
			s.cmdInsert(args[1:])
		case "remove":
			s.cmdRemove(args[1:])
		case "lookup":
			s.cmdLookup(args[1:])
		case "kill":
			s.net.SetAlive("master", false)
			fmt.Println("master marked down")
		case "revive":
			s.net.SetAlive("master", true)
			fmt.Println("master marked up")
		default:
			fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		}
	}
}

func printHelp() {
	fmt.Println(`commands:
  take-ownership <firstKey> <firstNotOwnedKey>
  drop-ownership <firstKey> <firstNotOwnedKey>
  insert <key> <hash>
  remove <key> <hash>
  lookup <firstKey> <firstAllowedHash> <lastKey> <max>
  kill / revive
  exit`)
}

func (s *shell) cmdTakeOwnership(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: take-ownership <firstKey> <firstNotOwnedKey>")
		return
	}
	req := rpc.TakeIndexletOwnershipRequest{
		TableId:        s.tableId,
		IndexId:        s.indexId,
		StorageTableId: s.storage,
		FirstKey:       ramcloud.Key(args[0]),
		FirstNotOwned:  keyOrOpen(args[1]),
	}
	w := rpc.NewServerIdWrapper("take_indexlet_ownership", s.net, s.net, s.locate, s.servers, masterServerId,
		rpc.OpTakeIndexletOwnership, rpc.ServiceIndexlet, req.Encode(), rpc.TakeIndexletOwnershipMinHeaderLen, nil, s.ctx.Log)
	s.runToStatus(w)
}

func (s *shell) cmdDropOwnership(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: drop-ownership <firstKey> <firstNotOwnedKey>")
		return
	}
	req := rpc.DropIndexletOwnershipRequest{
		TableId:       s.tableId,
		IndexId:       s.indexId,
		FirstKey:      ramcloud.Key(args[0]),
		FirstNotOwned: keyOrOpen(args[1]),
	}
	w := rpc.NewServerIdWrapper("drop_indexlet_ownership", s.net, s.net, s.locate, s.servers, masterServerId,
		rpc.OpDropIndexletOwnership, rpc.ServiceIndexlet, req.Encode(), rpc.DropIndexletOwnershipMinHeaderLen, nil, s.ctx.Log)
	s.runToStatus(w)
}

func (s *shell) cmdInsert(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: insert <key> <hash>")
		return
	}
	hash, _ := strconv.ParseUint(args[1], 10, 64)
	key := ramcloud.Key(args[0])
	req := rpc.InsertIndexEntryRequest{TableId: s.tableId, IndexId: s.indexId, IndexKey: key, PrimaryKeyHash: hash}
	w := rpc.NewIndexWrapper("insert_index_entry", s.net, s.cache, s.tableId, s.indexId, key,
		rpc.OpInsertIndexEntry, rpc.ServiceIndexlet, req.Encode(), rpc.InsertIndexEntryMinHeaderLen, s.ctx.Log)
	s.runIndexToStatus(w)
}

func (s *shell) cmdRemove(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: remove <key> <hash>")
		return
	}
	hash, _ := strconv.ParseUint(args[1], 10, 64)
	key := ramcloud.Key(args[0])
	req := rpc.RemoveIndexEntryRequest{TableId: s.tableId, IndexId: s.indexId, IndexKey: key, PrimaryKeyHash: hash}
	w := rpc.NewIndexWrapper("remove_index_entry", s.net, s.cache, s.tableId, s.indexId, key,
		rpc.OpRemoveIndexEntry, rpc.ServiceIndexlet, req.Encode(), rpc.RemoveIndexEntryMinHeaderLen, s.ctx.Log)
	s.runIndexToStatus(w)
}

func (s *shell) cmdLookup(args []string) {
	if len(args) != 4 {
		fmt.Println("usage: lookup <firstKey> <firstAllowedHash> <lastKey> <max>")
		return
	}
	firstHash, _ := strconv.ParseUint(args[1], 10, 64)
	max, _ := strconv.Atoi(args[3])
	firstKey := ramcloud.Key(args[0])
	req := rpc.LookupIndexKeysRequest{
		TableId:             s.tableId,
		IndexId:             s.indexId,
		FirstKey:            firstKey,
		FirstAllowedKeyHash: firstHash,
		LastKey:             ramcloud.Key(args[2]),
		MaxHashes:           max,
	}
	w := rpc.NewIndexWrapper("lookup_index_keys", s.net, s.cache, s.tableId, s.indexId, firstKey,
		rpc.OpLookupIndexKeys, rpc.ServiceIndexlet, req.Encode(), rpc.LookupIndexKeysMinHeaderLen, s.ctx.Log)

	ok, resp, err := rpc.WaitIndex(context.Background(), w)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if !ok {
		fmt.Println("CANCELED: no indexlet covers this key")
		return
	}
	decoded := rpc.DecodeLookupIndexKeysResponse(resp)
	fmt.Printf("status=%s hashes=%v truncated=%v nextKey=%q nextKeyHash=%d\n",
		decoded.Status, decoded.Hashes, decoded.Truncated, string(decoded.NextKey), decoded.NextHash)
}

func (s *shell) runToStatus(w *rpc.Wrapper) {
	resp, err := w.Wait(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(status.Status(resp[0]))
}

func (s *shell) runIndexToStatus(w *rpc.Wrapper) {
	ok, resp, err := rpc.WaitIndex(context.Background(), w)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if !ok {
		fmt.Println("CANCELED: no indexlet covers this key")
		return
	}
	fmt.Println(status.Status(resp[0]))
}

func keyOrOpen(s string) ramcloud.Key {
	if s == "-" {
		return nil
	}
	return ramcloud.Key(s)
}
