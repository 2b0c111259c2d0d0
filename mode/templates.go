package mode

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"

	"golang.org/x/xerrors"

	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/model"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/pipeline"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/lgr"
	"github.com/LionJade/Intelligent-Monitoring-Based-on-Loongson/service/templates"
)

var ErrUsage = xerrors.New("invalid arguments")

// Enroll sends a face template to a device.
//
// args: <device name> <template name> <image.jpg>
func Enroll(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: enroll <device> <name> <image.jpg>", ErrUsage)
	}
	device, err := svcs.DataSvc.RetrieveDeviceByName(args[0])
	if err != nil {
		return err
	}

	image, err := os.ReadFile(args[2])
	if err != nil {
		return model.NewError(model.IOError, model.CauseOther, "read template image", args[2], err)
	}

	addr := net.JoinHostPort(device.Address, strconv.Itoa(svcs.CfgSvc.GetEnrollPort()))
	client := templates.NewClient(svcs.CfgSvc.GetClientTimeout())
	if err := client.Enroll(canxCtx, addr, args[1], image); err != nil {
		procError(svcs.DataSvc, model.GenError("templates_enroll",
			err,
			map[string]interface{}{"device": device.Name, "cause": model.CauseOf(err)},
			"error enrolling template %s",
			args[1]))
		return err
	}

	lgr.Logger.Info(
		"template sent",
		slog.String("device", device.Name),
		slog.String("addr", addr),
		slog.String("name", args[1]),
		slog.Int("bytes", len(image)),
	)
	return nil
}

// Forget asks a device to delete a face template.
//
// args: <device name> <template name>
func Forget(canxCtx context.Context, svcs pipeline.ServicesFactory, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: forget <device> <name>", ErrUsage)
	}
	device, err := svcs.DataSvc.RetrieveDeviceByName(args[0])
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(device.Address, strconv.Itoa(svcs.CfgSvc.GetDeletePort()))
	client := templates.NewClient(svcs.CfgSvc.GetClientTimeout())
	if err := client.Delete(canxCtx, addr, args[1]); err != nil {
		procError(svcs.DataSvc, model.GenError("templates_forget",
			err,
			map[string]interface{}{"device": device.Name, "cause": model.CauseOf(err)},
			"error deleting template %s",
			args[1]))
		return err
	}

	lgr.Logger.Info(
		"template delete sent",
		slog.String("device", device.Name),
		slog.String("addr", addr),
		slog.String("name", args[1]),
	)
	return nil
}
