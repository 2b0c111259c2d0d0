package mode

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/pipeline"
)

// Devices manages the device registry.
//
// args: list | add <name> <address> <port> | default <name> | recordings
func Devices(_ context.Context, svcs pipeline.ServicesFactory, args []string) error {
	return devices(os.Stdout, svcs, args)
}

func devices(out io.Writer, svcs pipeline.ServicesFactory, args []string) error {
	cmd := "list"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "list":
		return listDevices(out, svcs)

	case "add":
		if len(args) != 4 {
			return fmt.Errorf("%w: devices add <name> <address> <port>", ErrUsage)
		}
		port, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("%w: port %q", ErrUsage, args[3])
		}
		err = svcs.DataSvc.AddDevice(model.Device{Name: args[1], Address: args[2], Port: port})
		if err != nil {
			return err
		}
		return listDevices(out, svcs)

	case "default":
		if len(args) != 2 {
			return fmt.Errorf("%w: devices default <name>", ErrUsage)
		}
		if err := svcs.DataSvc.UpdateDefaultDevice(args[1]); err != nil {
			return err
		}
		return listDevices(out, svcs)

	case "recordings":
		recordings, err := svcs.DataSvc.RetrieveRecordings()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tSIZE\tMODIFIED")
		for _, r := range recordings {
			fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Name, r.Size, time.Unix(r.Modified, 0).Format(time.DateTime))
		}
		return tw.Flush()

	default:
		return fmt.Errorf("%w: unknown devices command %q", ErrUsage, cmd)
	}
}

func listDevices(out io.Writer, svcs pipeline.ServicesFactory) error {
	list, err := svcs.DataSvc.RetrieveDevices()
	if err != nil {
		return err
	}
	def, err := svcs.DataSvc.RetrieveDefaultDevice()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tNAME\tADDRESS")
	for _, d := range list {
		mark := ""
		if d.Name == def.Name {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", mark, d.Name, d.StreamAddr())
	}
	return tw.Flush()
}
