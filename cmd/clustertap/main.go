// Command clustertap runs a cluster-tap node: as a master accepting slave
// registrations and answering console IPC, or as a slave connecting to (or
// auto-detecting) a master and executing the functions in its manifest.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lasso-sustech/cluster-tap/master"
	"github.com/lasso-sustech/cluster-tap/slave"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clustertap",
		Short: "cluster-tap master/slave node",
		RunE:  runNode,
	}

	root.Flags().IntP("port", "p", 11112, "control port to listen on (master) or connect to (slave)")
	root.Flags().Int("ipc-port", 52525, "IPC (UDP) port the master listens on")
	root.Flags().String("manifest", "./manifest.json", "path to the node's manifest file")
	root.Flags().BoolP("server", "s", false, "run as a master")
	root.Flags().StringP("client", "c", "", "run as a slave, connecting to ADDR (auto-detect if empty)")
	root.Flags().StringP("name", "n", "", "node name (defaults to the manifest's name)")

	_ = viper.BindPFlags(root.Flags())
	return root
}

func runNode(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	manifestPath, _ := cmd.Flags().GetString("manifest")
	port, _ := cmd.Flags().GetInt("port")
	ipcPort, _ := cmd.Flags().GetInt("ipc-port")
	isServer, _ := cmd.Flags().GetBool("server")
	clientAddr, _ := cmd.Flags().GetString("client")
	clientRequested := cmd.Flags().Changed("client")

	// Relative codebase globs and fraction paths resolve against the
	// manifest's directory, so the process runs from there.
	if dir := filepath.Dir(manifestPath); dir != "." {
		if err := os.Chdir(dir); err != nil {
			return err
		}
		manifestPath = filepath.Base(manifestPath)
	}

	if clientRequested {
		return runSlave(name, manifestPath, port, clientAddr)
	}
	if isServer {
		return runMaster(name, manifestPath, port, ipcPort)
	}
	return fmt.Errorf("specify client mode (-c) or server mode (-s)")
}

func runMaster(name, manifestPath string, port, ipcPort int) error {
	d, err := master.New(name, manifestPath)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return err
	}
	defer ln.Close()

	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: ipcPort})
	if err != nil {
		return err
	}
	defer udpConn.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		d.Shutdown()
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- d.ServeControl(ln) }()
	go func() { errCh <- d.ServeIPC(udpConn) }()
	return <-errCh
}

func runSlave(name, manifestPath string, port int, clientAddr string) error {
	d, err := slave.New(name, manifestPath)
	if err != nil {
		return err
	}

	var conn net.Conn
	if clientAddr != "" {
		conn, err = slave.Register(fmt.Sprintf("%s:%d", clientAddr, port), d.Name)
	} else {
		conn, err = slave.AutoDetect(port, d.Name)
	}
	if err != nil {
		return err
	}

	return d.Serve(conn)
}
