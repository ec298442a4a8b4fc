package goble

import (
	"context"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/ghsd/internal/gatt"
)

// buildService converts svc into a go-ble service whose handlers feed the dispatcher.
// go-ble owns the client configuration descriptors and reports them through the
// notify and indicate handlers.
func (p *Platform) buildService(svc *gatt.Service) (*ble.Service, error) {
	u, err := toBLEUUID(svc.UUID)
	if err != nil {
		return nil, err
	}
	bs := ble.NewService(u)

	for _, char := range svc.Characteristics() {
		cu, err := toBLEUUID(char.UUID)
		if err != nil {
			return nil, err
		}
		bc := bs.NewCharacteristic(cu)
		p.bindCharacteristic(bc, char)

		for _, desc := range char.Descriptors() {
			if desc.UUID == gatt.ClientConfigUUID {
				continue
			}
			du, err := toBLEUUID(desc.UUID)
			if err != nil {
				return nil, err
			}
			p.bindDescriptor(bc.NewDescriptor(du), desc)
		}
	}
	return bs, nil
}

func (p *Platform) bindCharacteristic(bc *ble.Characteristic, char *gatt.Characteristic) {
	if char.Properties.Has(gatt.PropRead) {
		bc.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
			value, status := p.readCharacteristic(req.Conn(), char, req.Offset())
			respond(rsp, value, status)
		}))
	}
	if char.Properties.Has(gatt.PropWrite) || char.Properties.Has(gatt.PropWriteNoResp) {
		bc.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
			respond(rsp, nil, p.writeCharacteristic(req.Conn(), char, req.Data()))
		}))
	}
	if char.Properties.Has(gatt.PropNotify) {
		bc.HandleNotify(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
			p.subscribe(n.Context(), req.Conn(), char, n)
		}))
	}
	if char.Properties.Has(gatt.PropIndicate) {
		bc.HandleIndicate(ble.NotifyHandlerFunc(func(req ble.Request, n ble.Notifier) {
			p.subscribe(n.Context(), req.Conn(), char, n)
		}))
	}
}

func (p *Platform) bindDescriptor(bd *ble.Descriptor, desc *gatt.Descriptor) {
	bd.HandleRead(ble.ReadHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		value, status := p.readDescriptor(req.Conn(), desc, req.Offset())
		respond(rsp, value, status)
	}))
	bd.HandleWrite(ble.WriteHandlerFunc(func(req ble.Request, rsp ble.ResponseWriter) {
		respond(rsp, nil, p.writeDescriptor(req.Conn(), desc, req.Data()))
	}))
}

func respond(rsp ble.ResponseWriter, value []byte, status gatt.Status) {
	if status != gatt.StatusSuccess {
		rsp.SetStatus(ble.ATTError(status))
		return
	}
	if len(value) > 0 {
		if _, err := rsp.Write(value); err != nil {
			rsp.SetStatus(ble.ATTError(gatt.StatusUnlikely))
		}
	}
}

// ----------------------------------------------------------------------------
// Requests, marshalled onto the event loop
// ----------------------------------------------------------------------------

type readResult struct {
	value  []byte
	status gatt.Status
}

func (p *Platform) readCharacteristic(pr peer, char *gatt.Characteristic, offset int) ([]byte, gatt.Status) {
	res, err := onLoop(p, func() readResult {
		c := p.attach(pr)
		value, status := p.dispatcher.OnCharacteristicRead(c.id, char, offset)
		return readResult{value, status}
	})
	if err != nil {
		p.requestFailed("read", pr, char.UUID, err)
		return nil, gatt.StatusUnlikely
	}
	return res.value, res.status
}

func (p *Platform) writeCharacteristic(pr peer, char *gatt.Characteristic, value []byte) gatt.Status {
	data := append([]byte(nil), value...)
	status, err := onLoop(p, func() gatt.Status {
		c := p.attach(pr)
		status := p.dispatcher.OnCharacteristicWrite(c.id, char, data)
		if status == gatt.StatusSuccess {
			p.loop.Post(func() { p.dispatcher.OnCharacteristicWriteCompleted(c.id, char, data) })
		}
		return status
	})
	if err != nil {
		p.requestFailed("write", pr, char.UUID, err)
		return gatt.StatusUnlikely
	}
	return status
}

func (p *Platform) readDescriptor(pr peer, desc *gatt.Descriptor, offset int) ([]byte, gatt.Status) {
	res, err := onLoop(p, func() readResult {
		c := p.attach(pr)
		value, status := p.dispatcher.OnDescriptorRead(c.id, desc, offset)
		return readResult{value, status}
	})
	if err != nil {
		p.requestFailed("descriptor read", pr, desc.UUID, err)
		return nil, gatt.StatusUnlikely
	}
	return res.value, res.status
}

func (p *Platform) writeDescriptor(pr peer, desc *gatt.Descriptor, value []byte) gatt.Status {
	data := append([]byte(nil), value...)
	status, err := onLoop(p, func() gatt.Status {
		c := p.attach(pr)
		status := p.dispatcher.OnDescriptorWrite(c.id, desc, data)
		if status == gatt.StatusSuccess {
			p.loop.Post(func() { p.dispatcher.OnDescriptorWriteCompleted(c.id, desc, data) })
		}
		return status
	})
	if err != nil {
		p.requestFailed("descriptor write", pr, desc.UUID, err)
		return gatt.StatusUnlikely
	}
	return status
}

// subscribe registers n for char and blocks until ctx ends the subscription.
// A subscription that ends because the link dropped is left to the disconnect path.
func (p *Platform) subscribe(ctx context.Context, pr peer, char *gatt.Characteristic, n notifier) {
	c, err := onLoop(p, func() *client {
		c := p.attach(pr)
		c.notifiers.Set(charKey(char), n)
		p.dispatcher.OnNotificationsEnabled(c.id, char)
		return c
	})
	if err != nil {
		p.requestFailed("subscribe", pr, char.UUID, err)
		return
	}

	<-ctx.Done()

	p.loop.Post(func() {
		if current, ok := c.notifiers.Get(charKey(char)); ok && current == n {
			c.notifiers.Del(charKey(char))
		}
		if !connected(c) {
			return
		}
		p.dispatcher.OnNotificationsDisabled(c.id, char)
	})
}

// onLoop runs fn on the event loop and returns its result.
func onLoop[T any](p *Platform, fn func() T) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	out := make(chan T, 1)
	if err := p.loop.Call(ctx, func() { out <- fn() }); err != nil {
		var zero T
		return zero, err
	}
	return <-out, nil
}

func (p *Platform) requestFailed(op string, pr peer, uuid gatt.UUID, err error) {
	p.logger.WithFields(logrus.Fields{
		"op":        op,
		"client":    clientID(pr.RemoteAddr()),
		"attribute": uuid,
		"error":     err,
	}).Warn("Request did not reach the event loop")
}

func toBLEUUID(u gatt.UUID) (ble.UUID, error) {
	bu, err := ble.Parse(string(u))
	if err != nil {
		return nil, fmt.Errorf("invalid attribute UUID %s: %w", u, err)
	}
	return bu, nil
}
