package artifacts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Bidon15/rollupctl/internal/chain"
	"github.com/Bidon15/rollupctl/internal/component"
	"github.com/Bidon15/rollupctl/internal/plan"
)

// Factory deploys plan components from a library through a submitter.
type Factory struct {
	lib           *Library
	submitter     chain.Submitter
	proxyArtifact string
	logger        *slog.Logger
}

var _ component.Factory = (*Factory)(nil)

// NewFactory returns a factory. proxyArtifact names the proxy contract used
// for proxied components; empty means plan.DefaultProxyArtifact.
func NewFactory(lib *Library, submitter chain.Submitter, proxyArtifact string, logger *slog.Logger) *Factory {
	if proxyArtifact == "" {
		proxyArtifact = plan.DefaultProxyArtifact
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{lib: lib, submitter: submitter, proxyArtifact: proxyArtifact, logger: logger}
}

// Handle resolves d's artifact, and its proxy artifact when d is proxied.
func (f *Factory) Handle(d *plan.Descriptor) (component.Handle, error) {
	art, err := f.lib.Get(d.ArtifactName())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	h := &handle{factory: f, name: d.Name, artifact: art}
	if d.Proxy {
		proxy, err := f.lib.Get(f.proxyArtifact)
		if err != nil {
			return nil, fmt.Errorf("%s proxy: %w", d.Name, err)
		}
		h.proxy = proxy
	}
	return h, nil
}

type handle struct {
	factory  *Factory
	name     string
	artifact *ContractArtifact
	proxy    *ContractArtifact
}

func (h *handle) Instantiate(ctx context.Context, req component.Request) (*component.Instantiation, error) {
	if h.proxy == nil {
		return h.Implement(ctx, req.Args...)
	}

	impl := &component.Instantiation{}
	if req.Implementation != nil {
		impl.Address = *req.Implementation
		h.factory.logger.Info("reusing implementation",
			slog.String("component", h.name),
			slog.String("implementation", impl.Address.Hex()),
		)
	} else {
		var err error
		if impl, err = h.Implement(ctx, req.Args...); err != nil {
			return nil, err
		}
	}
	implAddr := impl.Address
	deployed := &component.Instantiation{Implementation: &implAddr, ImplementationTx: impl.TxHash}

	admin := h.factory.submitter.From()
	if req.ProxyAdmin != nil {
		admin = *req.ProxyAdmin
	}

	proxyArgs := []any{implAddr, admin, []byte{}}
	if len(h.proxy.Parsed().Constructor.Inputs) == 2 {
		// ERC1967Proxy(logic, data) has no admin.
		proxyArgs = []any{implAddr, []byte{}}
	}
	data, err := h.proxy.CreationData(proxyArgs...)
	if err != nil {
		return deployed, fmt.Errorf("%s proxy: %w", h.name, err)
	}
	addr, hash, err := h.deploy(ctx, data)
	if err != nil {
		return deployed, fmt.Errorf("%s proxy: %w", h.name, err)
	}

	h.factory.logger.Info("proxy deployed",
		slog.String("component", h.name),
		slog.String("proxy", addr.Hex()),
		slog.String("implementation", implAddr.Hex()),
		slog.String("admin", admin.Hex()),
	)

	deployed.Address = addr
	deployed.TxHash = hash
	return deployed, nil
}

func (h *handle) Implement(ctx context.Context, args ...any) (*component.Instantiation, error) {
	data, err := h.artifact.CreationData(args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.name, err)
	}
	addr, hash, err := h.deploy(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", h.name, err)
	}
	return &component.Instantiation{Address: addr, TxHash: hash}, nil
}

func (h *handle) Attach(addr common.Address) component.Instance {
	return NewContract(h.name, addr, h.artifact, h.factory.submitter)
}

func (h *handle) deploy(ctx context.Context, data []byte) (common.Address, common.Hash, error) {
	receipt, err := h.factory.submitter.Send(ctx, chain.Call{Data: data})
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	return receipt.ContractAddress, receipt.TxHash, nil
}
