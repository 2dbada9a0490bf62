package ftpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nebulaftp/nebulaftp/internal/ftpconn"
	"github.com/nebulaftp/nebulaftp/internal/users"
	"github.com/nebulaftp/nebulaftp/internal/vfserr"
	"github.com/nebulaftp/nebulaftp/internal/vpath"
)

// handlerFunc is the shape every command table entry implements.
// Returning false terminates the session (QUIT).
type handlerFunc func(ctx context.Context, s *Session, rest string) bool

var commandTable map[string]handlerFunc

func init() {
	commandTable = map[string]handlerFunc{
		"user": cmdUser, "pass": cmdPass, "quit": cmdQuit,
		"pwd": cmdPWD, "cwd": cmdCWD, "cdup": cmdCDUP,
		"mkd": cmdMKD, "rmd": cmdRMD,
		"list": cmdLIST, "mlsd": cmdLIST, "mlst": cmdMLST,
		"dele": cmdDELE,
		"stor": cmdSTOR, "appe": cmdAPPE, "retr": cmdRETR,
		"rest": cmdREST, "rnfr": cmdRNFR, "rnto": cmdRNTO,
		"type": cmdOK200, "pbsz": cmdOK200, "prot": cmdOK200,
		"syst": cmdSYST, "feat": cmdFEAT, "opts": cmdOPTS,
		"size": cmdSIZE, "mdtm": cmdMDTM,
		"pasv": cmdPASV, "epsv": cmdEPSV,
		"abor": cmdABOR,
	}
}

// runGates evaluates gates in order, replying and returning false on
// the first failure.
func runGates(ctx context.Context, s *Session, gates ...ftpconn.Gate) bool {
	for _, g := range gates {
		if ok, fail := g(ctx, s.conn_); !ok {
			s.reply(fail.Code, fail.Message)
			return false
		}
	}
	return true
}

// pathGate mirrors PathConditions: mustExist/mustNotExist/mustBeDir/
// mustBeFile evaluated against realPath's node.
func pathGate(ctx context.Context, s *Session, realPath string, mustExist, mustNotExist, mustBeDir, mustBeFile bool) bool {
	node, err := s.srv.vfs.GetNode(ctx, realPath)
	if err != nil {
		s.reply(451, "fs error")
		return false
	}
	if mustExist && node == nil {
		s.reply(550, "path does not exist")
		return false
	}
	if mustNotExist && node != nil {
		s.reply(550, "path already exists")
		return false
	}
	if mustBeDir && (node == nil || !node.IsDir()) {
		s.reply(550, "path is not a directory")
		return false
	}
	if mustBeFile && (node == nil || !node.IsFile()) {
		s.reply(550, "path is not a file")
		return false
	}
	return true
}

// permGate mirrors PathPermissions: checks readable/writable against
// the resolved virtual path.
func permGate(s *Session, virtualPath string, needReadable, needWritable bool) bool {
	u := s.conn_.User()
	if u == nil {
		s.reply(550, "permission denied")
		return false
	}
	perm := users.GetPermissions(u, virtualPath)
	if needReadable && !perm.Readable {
		s.reply(550, "permission denied")
		return false
	}
	if needWritable && !perm.Writable {
		s.reply(550, "permission denied")
		return false
	}
	return true
}

func cmdUser(ctx context.Context, s *Session, rest string) bool {
	if u := s.conn_.User(); u != nil {
		users.NotifyLogout(u)
	}
	s.conn_.ClearUser()
	s.conn_.ClearLogged()

	state, u, info := s.srv.users.GetUser(rest)
	switch state {
	case users.PasswordRequired:
		if !s.srv.acquireUserSlot(rest) {
			users.NotifyLogout(u)
			s.reply(530, "too many connections")
			return true
		}
		s.loggedIn = rest
		s.conn_.SetUser(u)
		s.conn_.SetCWD(u.HomePath)
		s.reply(331, "password required")
	case users.StateError:
		s.reply(530, info)
	}
	return true
}

func cmdPass(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.UserRequired()) {
		return true
	}
	if s.conn_.Logged() {
		s.reply(503, "already logged")
		return true
	}
	u := s.conn_.User()
	if users.Authenticate(u, rest) {
		s.conn_.SetLogged(true)
		_ = s.srv.vfs.Mkdir(ctx, u.HomePath, true)
		s.reply(230, "ok")
	} else {
		s.reply(530, "wrong pass")
	}
	return true
}

func cmdQuit(ctx context.Context, s *Session, rest string) bool {
	s.reply(221, "bye")
	return false
}

func cmdPWD(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired()) {
		return true
	}
	s.reply(257, fmt.Sprintf("%q", s.conn_.CWD()))
	return true
}

func cmdCWD(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired()) {
		return true
	}
	_, virt := getPaths(s.conn_.CWD(), rest)
	if !pathGate(ctx, s, virt, true, false, true, false) {
		return true
	}
	if !permGate(s, virt, true, false) {
		return true
	}
	s.conn_.SetCWD(virt)
	s.reply(250, "ok")
	return true
}

func cmdCDUP(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired()) {
		return true
	}
	return cmdCWD(ctx, s, "..")
}

func cmdMKD(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired()) {
		return true
	}
	_, virt := getPaths(s.conn_.CWD(), rest)
	if !pathGate(ctx, s, virt, false, true, false, false) {
		return true
	}
	if !permGate(s, virt, false, true) {
		return true
	}
	if err := s.srv.vfs.Mkdir(ctx, virt, false); err != nil {
		s.replyErr(err)
		return true
	}
	s.reply(257, "ok")
	return true
}

func cmdRMD(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired()) {
		return true
	}
	_, virt := getPaths(s.conn_.CWD(), rest)
	if !pathGate(ctx, s, virt, true, false, true, false) {
		return true
	}
	if !permGate(s, virt, false, true) {
		return true
	}
	if err := s.srv.vfs.Rmdir(ctx, virt); err != nil {
		s.replyErr(err)
		return true
	}
	s.reply(250, "ok")
	return true
}

func cmdDELE(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired()) {
		return true
	}
	_, virt := getPaths(s.conn_.CWD(), rest)
	if !pathGate(ctx, s, virt, true, false, false, true) {
		return true
	}
	if !permGate(s, virt, false, true) {
		return true
	}
	if err := s.srv.vfs.Unlink(ctx, virt); err != nil {
		s.replyErr(err)
		return true
	}
	s.reply(250, "deleted")
	return true
}

func cmdLIST(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired(), ftpconn.PassiveServerStarted()) {
		return true
	}
	_, virt := getPaths(s.conn_.CWD(), rest)
	if !pathGate(ctx, s, virt, true, false, false, false) {
		return true
	}
	if !permGate(s, virt, true, false) {
		return true
	}

	genAtSpawn := s.currentAbortGen()
	s.goWorker(func() { s.listWorker(ctx, genAtSpawn, virt) })
	s.reply(150, "listing")
	return true
}

func (s *Session) listWorker(ctx context.Context, gen int, path string) {
	if !runGates(ctx, s, ftpconn.DataConnectionMade()) {
		return
	}
	conn := s.conn_.DataConnection()
	s.conn_.ClearDataConnection()
	defer conn.Close()

	nodes, err := s.srv.vfs.List(ctx, path)
	if err != nil {
		s.reply(451, "fs error")
		return
	}
	for _, n := range nodes {
		if gen != s.currentAbortGen() {
			s.reply(426, "transfer aborted")
			s.reply(226, "abort successful")
			return
		}
		line := buildListString(n) + "\r\n"
		if _, err := conn.Write([]byte(line)); err != nil {
			s.reply(451, "fs error")
			return
		}
	}
	s.reply(226, "done")
}

func cmdMLST(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired()) {
		return true
	}
	_, virt := getPaths(s.conn_.CWD(), rest)
	if !pathGate(ctx, s, virt, true, false, false, false) {
		return true
	}
	if !permGate(s, virt, true, false) {
		return true
	}
	_, name := splitLeaf(virt)
	s.replyListStyle(250, "start", []string{"Type=file; " + name}, "end")
	return true
}

func cmdSTOR(ctx context.Context, s *Session, rest string) bool {
	return storeCommon(ctx, s, rest)
}

func cmdAPPE(ctx context.Context, s *Session, rest string) bool {
	return storeCommon(ctx, s, rest)
}

func storeCommon(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired(), ftpconn.PassiveServerStarted()) {
		return true
	}
	_, virt := getPaths(s.conn_.CWD(), rest)
	if !permGate(s, virt, false, true) {
		return true
	}

	parent, _ := splitLeaf(virt)
	parentNode, err := s.srv.vfs.GetNode(ctx, parent)
	if err != nil || parentNode == nil || !parentNode.IsDir() {
		s.reply(550, "path invalid")
		return true
	}

	offset := s.conn_.RestartOffset()
	genAtSpawn := s.currentAbortGen()
	s.goWorker(func() { s.storWorker(ctx, genAtSpawn, virt, offset) })
	s.reply(150, "upload starting")
	return true
}

func (s *Session) storWorker(ctx context.Context, gen int, path string, offset int64) {
	if !runGates(ctx, s, ftpconn.DataConnectionMade()) {
		return
	}
	conn := s.conn_.DataConnection()
	s.conn_.ClearDataConnection()
	defer conn.Close()

	handle, err := s.srv.vfs.Open(ctx, path, "wb", s.srv.blob)
	if err != nil {
		s.reply(451, "fs error")
		return
	}
	if offset > 0 {
		handle.Seek(offset)
	}
	if _, err := handle.WriteStream(ctx, s.srv.cfg.StagingDir, abortableReader{conn, s, gen}); err != nil {
		if gen != s.currentAbortGen() {
			s.reply(426, "transfer aborted")
			s.reply(226, "abort successful")
			return
		}
		s.reply(451, "fs error")
		return
	}
	s.reply(226, "transfer complete")
}

func cmdRETR(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired(), ftpconn.PassiveServerStarted()) {
		return true
	}
	_, virt := getPaths(s.conn_.CWD(), rest)
	if !pathGate(ctx, s, virt, true, false, false, true) {
		return true
	}
	if !permGate(s, virt, true, false) {
		return true
	}

	offset := s.conn_.RestartOffset()
	genAtSpawn := s.currentAbortGen()
	s.goWorker(func() { s.retrWorker(ctx, genAtSpawn, virt, offset) })
	s.reply(150, "download starting")
	return true
}

const retrBlockSize = 1024 * 512

func (s *Session) retrWorker(ctx context.Context, gen int, path string, offset int64) {
	if !runGates(ctx, s, ftpconn.DataConnectionMade()) {
		return
	}
	conn := s.conn_.DataConnection()
	s.conn_.ClearDataConnection()
	defer conn.Close()

	handle, err := s.srv.vfs.Open(ctx, path, "rb", s.srv.blob)
	if err != nil {
		s.reply(451, "fs error")
		return
	}

	aborted := false
	err = handle.IterByBlock(ctx, offset, retrBlockSize, func(b []byte) error {
		if gen != s.currentAbortGen() {
			aborted = true
			return io.EOF
		}
		_, werr := conn.Write(b)
		return werr
	})
	if aborted {
		s.reply(426, "transfer aborted")
		s.reply(226, "abort successful")
		return
	}
	if err != nil {
		s.reply(451, "fs error")
		return
	}
	s.reply(226, "transfer complete")
}

func cmdREST(ctx context.Context, s *Session, rest string) bool {
	n, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
	if err != nil || n < 0 {
		n = 0
	}
	s.conn_.SetRestartOffset(n)
	s.reply(350, "restart")
	return true
}

func cmdRNFR(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired()) {
		return true
	}
	_, virt := getPaths(s.conn_.CWD(), rest)
	s.conn_.SetRenameFrom(virt)
	s.reply(350, "pending")
	return true
}

func cmdRNTO(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired(), ftpconn.RenameFromRequired()) {
		return true
	}
	from, _ := s.conn_.RenameFrom()
	s.conn_.ClearRenameFrom()
	_, virt := getPaths(s.conn_.CWD(), rest)
	if err := s.srv.vfs.Rename(ctx, from, virt); err != nil {
		s.replyErr(err)
		return true
	}
	s.reply(250, "renamed")
	return true
}

func cmdOK200(ctx context.Context, s *Session, rest string) bool {
	s.reply(200, "ok")
	return true
}

func cmdSYST(ctx context.Context, s *Session, rest string) bool {
	s.reply(215, "UNIX Type: L8")
	return true
}

func cmdFEAT(ctx context.Context, s *Session, rest string) bool {
	features := []string{
		"UTF8", "SIZE", "MDTM",
		"MLST type*;size*;modify*;perm*;unique*;unix.mode*;",
		"EPSV", "PASV",
	}
	lines := append([]string{"Features:"}, features...)
	lines = append(lines, "End")
	s.replyLines(211, lines)
	return true
}

func cmdOPTS(ctx context.Context, s *Session, rest string) bool {
	if strings.HasPrefix(strings.ToUpper(rest), "UTF8 ON") {
		s.reply(200, "Always in UTF8 mode.")
		return true
	}
	s.reply(501, "Option not understood")
	return true
}

func cmdSIZE(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired()) {
		return true
	}
	_, virt := getPaths(s.conn_.CWD(), rest)
	if !pathGate(ctx, s, virt, true, false, false, true) {
		return true
	}
	if !permGate(s, virt, true, false) {
		return true
	}
	node, err := s.srv.vfs.GetNode(ctx, virt)
	if err != nil || node == nil {
		s.reply(451, "fs error")
		return true
	}
	s.reply(213, strconv.FormatInt(node.Size, 10))
	return true
}

func cmdMDTM(ctx context.Context, s *Session, rest string) bool {
	if !runGates(ctx, s, ftpconn.LoginRequired()) {
		return true
	}
	_, virt := getPaths(s.conn_.CWD(), rest)
	if !pathGate(ctx, s, virt, true, false, false, false) {
		return true
	}
	if !permGate(s, virt, true, false) {
		return true
	}
	node, err := s.srv.vfs.GetNode(ctx, virt)
	if err != nil || node == nil {
		s.reply(451, "fs error")
		return true
	}
	s.reply(213, time.Unix(node.MTime, 0).UTC().Format("20060102150405"))
	return true
}

func cmdPASV(ctx context.Context, s *Session, rest string) bool {
	return pasvCommon(ctx, s, false)
}

func cmdEPSV(ctx context.Context, s *Session, rest string) bool {
	return pasvCommon(ctx, s, true)
}

func pasvCommon(ctx context.Context, s *Session, epsv bool) bool {
	if dc := s.conn_.DataConnection(); dc != nil {
		dc.Close()
		s.conn_.ClearDataConnection()
	}
	ps, err := s.bindPassiveListener()
	if err != nil {
		s.reply(421, "no available ports")
		return true
	}
	if epsv {
		s.reply(229, epsvReply(ps.Port))
	} else {
		s.reply(227, pasvReply(ps.Host, ps.Port))
	}
	return true
}

func cmdABOR(ctx context.Context, s *Session, rest string) bool {
	s.bumpAbortGen()
	if dc := s.conn_.DataConnection(); dc != nil {
		dc.Close()
		s.conn_.ClearDataConnection()
	}
	s.reply(226, "abor")
	return true
}

// replyErr maps a vfserr sentinel to its FTP reply code.
func (s *Session) replyErr(err error) {
	code, msg := vfserr.ReplyCode(err)
	s.reply(code, msg)
}

func splitLeaf(p string) (parent, leaf string) {
	return vpath.Split(p)
}

// errAborted is returned by abortableReader once the generation counter
// moves out from under it. It is distinct from io.EOF on purpose:
// WriteStream treats io.EOF as "clean end of stream" and proceeds to
// record the final size and enqueue an upload task, which would wrongly
// persist a transfer that ABOR cut short.
var errAborted = errors.New("ftpserver: transfer aborted")

// abortableReader wraps the data connection so WriteStream's blocking
// read unblocks once ABOR bumps the generation counter, by returning
// errAborted instead of reading further.
type abortableReader struct {
	r   io.Reader
	s   *Session
	gen int
}

func (a abortableReader) Read(p []byte) (int, error) {
	if a.gen != a.s.currentAbortGen() {
		return 0, errAborted
	}
	return a.r.Read(p)
}
